package cli

// GlobalFlags holds flags available to all subcommands.
type GlobalFlags struct {
	Config  string `long:"config" description:"Path to config file" default:"config.yaml" env:"CONFIG_PATH"`
	Server  string `long:"server" description:"Daemon base URL (overrides client.server)"`
	APIKey  string `long:"api-key" description:"Daemon API key (overrides client.apiKey)"`
	JSON    bool   `long:"json" description:"Output in JSON format"`
	Verbose bool   `long:"verbose" description:"Enable verbose output"`
	Version bool   `long:"version" description:"Show version and exit"`
}

// AnalyzeCommand: fetch or read a document and analyze it.
type AnalyzeCommand struct {
	URL       string `long:"url" description:"Page URL (fetched by the daemon unless --file or --stdin is given)"`
	File      string `long:"file" description:"Read document text from a file"`
	Stdin     bool   `long:"stdin" description:"Read document text from standard input"`
	Title     string `long:"title" description:"Document title"`
	Mode      string `long:"mode" description:"Analysis mode: flash | standard | deepdive | neural"`
	Prompt    string `long:"prompt" description:"Custom instructions (pro_plus and above)"`
	SkipCache bool   `long:"skip-cache" description:"Ignore cached results"`
	Push      bool   `long:"push" description:"Wait on the events socket instead of polling"`
	Sync      bool   `long:"sync" description:"Analyze in a single request without a background job"`

	globals *GlobalFlags
	version string
}

// StatusCommand: show the job state for a URL.
type StatusCommand struct {
	URL string `long:"url" description:"Page URL (required)"`

	globals *GlobalFlags
	version string
}

// UsageCommand: show quota for the current period.
type UsageCommand struct {
	globals *GlobalFlags
	version string
}

// HistoryCommand: list past analyses.
type HistoryCommand struct {
	Limit  int `long:"limit" description:"Maximum results" default:"20"`
	Offset int `long:"offset" description:"Skip first N results" default:"0"`

	globals *GlobalFlags
	version string
}

// WatchCommand: manage the watchlist.
type WatchCommand struct {
	Add    string `long:"add" description:"Watch an analyzed page by URL"`
	Remove string `long:"remove" description:"Stop watching an item by ID"`
	Check  bool   `long:"check" description:"Re-check every watched page now"`

	globals *GlobalFlags
	version string
}

// LoginCommand: sign in to the analysis service through the daemon.
type LoginCommand struct {
	Email    string `long:"email" description:"Account email (required)"`
	Password string `long:"password" description:"Account password (prompted from stdin when empty)" env:"TRAPSCAN_PASSWORD"`

	globals *GlobalFlags
	version string
}

// LogoutCommand: drop the stored session.
type LogoutCommand struct {
	globals *GlobalFlags
	version string
}

// ExtractCommand: print the readable text the daemon extracts from a page.
type ExtractCommand struct {
	URL      string `long:"url" description:"Page URL (required)"`
	File     string `long:"file" description:"Parse a local HTML file instead of fetching"`
	NoRedact bool   `long:"no-redact" description:"Keep emails, phone numbers and other PII"`
	Redact   bool   `long:"redact" description:"Redact PII regardless of the saved setting"`

	globals *GlobalFlags
	version string
}
