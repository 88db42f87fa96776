package extract

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Term is one dictionary entry: a canonical domain term, its surface
// synonyms, and the tables it is declared to relate to.
type Term struct {
	Canonical     string   `yaml:"canonical"`
	Synonyms      []string `yaml:"synonyms"`
	RelatedTables []string `yaml:"related_tables"`
}

// IntentExemplars holds keyword triggers and example phrasings for one
// intent. Exemplar phrases are embedded once and compared to the query.
type IntentExemplars struct {
	Intent   string   `yaml:"intent"`
	Keywords []string `yaml:"keywords"`
	Phrases  []string `yaml:"phrases"`
}

// Dictionaries is the static domain vocabulary, consumed as data.
type Dictionaries struct {
	Metrics []Term            `yaml:"metrics"`
	Players []Term            `yaml:"players"`
	Games   []Term            `yaml:"games"`
	Intents []IntentExemplars `yaml:"intents"`
}

// LoadDictionaries reads the vocabulary file.
func LoadDictionaries(path string) (*Dictionaries, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dictionaries file %s: %w", path, err)
	}
	var d Dictionaries
	if err := yaml.Unmarshal(data, &d); err != nil {
		return nil, fmt.Errorf("parse dictionaries file %s: %w", path, err)
	}
	return &d, nil
}

// DefaultDictionaries returns a built-in gaming vocabulary used when no
// dictionary file is configured and by tests.
func DefaultDictionaries() *Dictionaries {
	return &Dictionaries{
		Metrics: []Term{
			{Canonical: "ggr", Synonyms: []string{"ggr", "gross gaming revenue", "gaming revenue"}, RelatedTables: []string{"daily_player_actions", "revenue_summary"}},
			{Canonical: "ngr", Synonyms: []string{"ngr", "net gaming revenue"}, RelatedTables: []string{"revenue_summary"}},
			{Canonical: "bets", Synonyms: []string{"bets", "wagers", "stakes", "turnover", "handle"}, RelatedTables: []string{"daily_player_actions", "bet_transactions"}},
			{Canonical: "payouts", Synonyms: []string{"payouts", "winnings", "wins paid"}, RelatedTables: []string{"bet_transactions"}},
			{Canonical: "deposits", Synonyms: []string{"deposits", "deposit amount"}, RelatedTables: []string{"payment_transactions"}},
			{Canonical: "withdrawals", Synonyms: []string{"withdrawals", "cashouts"}, RelatedTables: []string{"payment_transactions"}},
			{Canonical: "active_players", Synonyms: []string{"active players", "dau", "mau"}, RelatedTables: []string{"daily_player_actions"}},
		},
		Players: []Term{
			{Canonical: "vip", Synonyms: []string{"vip", "vip players", "high rollers", "whales"}, RelatedTables: []string{"players", "player_segments"}},
			{Canonical: "new_players", Synonyms: []string{"new players", "first time depositors", "ftd"}, RelatedTables: []string{"players"}},
			{Canonical: "churned", Synonyms: []string{"churned players", "lapsed players", "inactive players"}, RelatedTables: []string{"players", "player_segments"}},
		},
		Games: []Term{
			{Canonical: "slots", Synonyms: []string{"slots", "slot games", "slot machines"}, RelatedTables: []string{"games", "game_rounds"}},
			{Canonical: "live_casino", Synonyms: []string{"live casino", "live dealer"}, RelatedTables: []string{"games"}},
			{Canonical: "sportsbook", Synonyms: []string{"sportsbook", "sports betting"}, RelatedTables: []string{"games", "bet_transactions"}},
		},
		Intents: []IntentExemplars{
			{Intent: "select", Keywords: []string{"show", "list", "get", "display", "which"}, Phrases: []string{"show me all players from germany", "list the games launched last year"}},
			{Intent: "aggregate", Keywords: []string{"total", "sum", "average", "count", "how many", "how much"}, Phrases: []string{"what was the total ggr last month", "how many players deposited yesterday"}},
			{Intent: "trend", Keywords: []string{"trend", "over time", "by month", "by week", "daily", "growth"}, Phrases: []string{"show the ggr trend by month this year", "daily active players over the last quarter"}},
			{Intent: "comparison", Keywords: []string{"compare", "versus", "vs", "difference between", "against"}, Phrases: []string{"compare slots revenue versus live casino", "deposits this month vs last month"}},
			{Intent: "top_n", Keywords: []string{"top", "best", "highest", "biggest", "most", "lowest"}, Phrases: []string{"top 10 players by wagering", "which games had the highest ggr"}},
			{Intent: "distribution", Keywords: []string{"distribution", "breakdown", "split", "share", "by segment"}, Phrases: []string{"breakdown of deposits by payment method", "bet size distribution for vip players"}},
			{Intent: "correlation", Keywords: []string{"correlation", "correlate", "relationship between"}, Phrases: []string{"is there a correlation between bonus spend and retention"}},
			{Intent: "forecast", Keywords: []string{"forecast", "predict", "projection", "expected"}, Phrases: []string{"forecast next month's ggr", "projected deposits for q4"}},
			{Intent: "anomaly", Keywords: []string{"anomaly", "unusual", "spike", "drop", "outlier"}, Phrases: []string{"any unusual spikes in withdrawals this week"}},
			{Intent: "drill", Keywords: []string{"drill", "detail", "per player", "individual", "specific"}, Phrases: []string{"drill into yesterday's ggr by game and player"}},
		},
	}
}
