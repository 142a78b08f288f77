package usage

import "fmt"

type Tier string

const (
	TierFree    Tier = "free"
	TierStarter Tier = "starter"
	TierPro     Tier = "pro"
	TierProPlus Tier = "pro_plus"
	TierAgency  Tier = "agency"
)

type Period string

const (
	PeriodWeek  Period = "week"
	PeriodMonth Period = "month"
)

// Features a tier unlocks.
type Features struct {
	WatchlistSize int  `json:"watchlistSize"`
	Export        bool `json:"exportEnabled"`
	Compare       bool `json:"compareEnabled"`
	Alerts        bool `json:"alertsEnabled"`
	APIAccess     bool `json:"apiAccess"`
	TrustBadge    bool `json:"trustBadge"`
}

// Plan is the static definition of a tier.
type Plan struct {
	Tier     Tier     `json:"tier"`
	Name     string   `json:"name"`
	Scans    int      `json:"scans"`
	Period   Period   `json:"period"`
	Level    int      `json:"level"`
	Features Features `json:"features"`
}

var plans = map[Tier]Plan{
	TierFree: {
		Tier: TierFree, Name: "Free", Scans: 3, Period: PeriodWeek, Level: 0,
		Features: Features{WatchlistSize: 2},
	},
	TierStarter: {
		Tier: TierStarter, Name: "Starter", Scans: 15, Period: PeriodMonth, Level: 1,
		Features: Features{WatchlistSize: 10, Export: true, Compare: true, Alerts: true},
	},
	TierPro: {
		Tier: TierPro, Name: "Pro", Scans: 80, Period: PeriodMonth, Level: 2,
		Features: Features{WatchlistSize: 50, Export: true, Compare: true, Alerts: true},
	},
	TierProPlus: {
		Tier: TierProPlus, Name: "Pro Plus", Scans: 200, Period: PeriodMonth, Level: 3,
		Features: Features{WatchlistSize: 100, Export: true, Compare: true, Alerts: true, APIAccess: true, TrustBadge: true},
	},
	TierAgency: {
		Tier: TierAgency, Name: "Agency", Scans: 300, Period: PeriodMonth, Level: 4,
		Features: Features{WatchlistSize: 500, Export: true, Compare: true, Alerts: true, APIAccess: true, TrustBadge: true},
	},
}

// Tiers in ascending order.
var Tiers = []Tier{TierFree, TierStarter, TierPro, TierProPlus, TierAgency}

// PlanFor returns the plan for t, falling back to free.
func PlanFor(t Tier) Plan {
	if p, ok := plans[t]; ok {
		return p
	}
	return plans[TierFree]
}

func ParseTier(s string) (Tier, error) {
	t := Tier(s)
	if _, ok := plans[t]; !ok {
		return "", fmt.Errorf("unknown tier %q", s)
	}
	return t, nil
}

// Plans returns every plan in ascending order.
func Plans() []Plan {
	out := make([]Plan, 0, len(Tiers))
	for _, t := range Tiers {
		out = append(out, plans[t])
	}
	return out
}
