package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Config stores all configuration for the application.
type Config struct {
	LogLevel      string `mapstructure:"log_level"`
	ServerPort    string `mapstructure:"server_port"`
	PostgresURL   string `mapstructure:"postgres_url"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`

	Browser   BrowserConfig   `mapstructure:"browser"`
	Search    SearchConfig    `mapstructure:"search"`
	Filter    FilterConfig    `mapstructure:"filter"`
	Sales     SalesConfig     `mapstructure:"sales"`
	Matcher   MatcherConfig   `mapstructure:"matcher"`
	Profit    ProfitConfig    `mapstructure:"profit"`
	Fees      FeesConfig      `mapstructure:"fees"`
	Explore   ExploreConfig   `mapstructure:"explore"`
	Registry  RegistryConfig  `mapstructure:"registry"`
	Embedding EmbeddingConfig `mapstructure:"embedding"`
}

type BrowserConfig struct {
	Headless     bool          `mapstructure:"headless"`
	PageTimeout  time.Duration `mapstructure:"page_timeout"`
	MaxTabs      int           `mapstructure:"max_tabs"`
	RequestDelay time.Duration `mapstructure:"request_delay"`
	Proxies      []string      `mapstructure:"proxies"`
	UserAgents   []string      `mapstructure:"user_agents"`
	// UserDataDir is the Chrome profile shared by every tab. Empty means a
	// throwaway profile, which loses the source marketplace login.
	UserDataDir string `mapstructure:"user_data_dir"`
}

type SearchConfig struct {
	BaseURL               string        `mapstructure:"base_url"`
	MaxResults            int           `mapstructure:"max_results"`
	FetchDetails          bool          `mapstructure:"fetch_details"`
	OrganicOnly           bool          `mapstructure:"organic_only"`
	SuggestURL            string        `mapstructure:"suggest_url"`
	SuggestMarketplaceID  string        `mapstructure:"suggest_marketplace_id"`
	SuggestTimeout        time.Duration `mapstructure:"suggest_timeout"`
	ImageSearchURL        string        `mapstructure:"image_search_url"`
	ImageSearchMaxResults int           `mapstructure:"image_search_max_results"`
	ImageFetchTimeout     time.Duration `mapstructure:"image_fetch_timeout"`
	LoginURL              string        `mapstructure:"login_url"`
}

// RankThreshold is the rank ceiling for one category, split by fulfillment.
type RankThreshold struct {
	FBA int `mapstructure:"fba"`
	FBM int `mapstructure:"fbm"`
}

type FilterConfig struct {
	MinPrice               int                      `mapstructure:"min_price"`
	MaxPrice               int                      `mapstructure:"max_price"`
	MaxReviews             int                      `mapstructure:"max_reviews"`
	MaxRating              float64                  `mapstructure:"max_rating"`
	MinRank                int                      `mapstructure:"min_rank"`
	MaxRank                int                      `mapstructure:"max_rank"`
	MaxVariations          int                      `mapstructure:"max_variations"`
	MaxDimensionSumCM      float64                  `mapstructure:"max_dimension_sum_cm"`
	MaxWeightKG            float64                  `mapstructure:"max_weight_kg"`
	ExcludedCategories     []string                 `mapstructure:"excluded_categories"`
	ProhibitedKeywords     []string                 `mapstructure:"prohibited_keywords"`
	ExcludedBrands         []string                 `mapstructure:"excluded_brands"`
	CategoryRankThresholds map[string]RankThreshold `mapstructure:"category_rank_thresholds"`
	CategoryAliases        map[string]string        `mapstructure:"category_aliases"`
}

// RankUnits maps a rank ceiling to estimated monthly units.
type RankUnits struct {
	MaxRank int `mapstructure:"max_rank"`
	Units   int `mapstructure:"units"`
}

// PowerLaw holds the coefficients of units = A * rank^-B * 30.
type PowerLaw struct {
	A float64 `mapstructure:"a"`
	B float64 `mapstructure:"b"`
}

const (
	SalesPolicyOptimistic   = "optimistic"
	SalesPolicyConservative = "conservative"
)

type SalesConfig struct {
	Policy       string              `mapstructure:"policy"`
	Table        []RankUnits         `mapstructure:"table"`
	Coefficients map[string]PowerLaw `mapstructure:"coefficients"`
}

type MatcherConfig struct {
	ImageSize        int     `mapstructure:"image_size"`
	MaxKeypoints     int     `mapstructure:"max_keypoints"`
	FASTThreshold    int     `mapstructure:"fast_threshold"`
	RatioThreshold   float64 `mapstructure:"ratio_threshold"`
	FetchConcurrency int     `mapstructure:"fetch_concurrency"`

	EmbeddingWeight          float64 `mapstructure:"embedding_weight"`
	EmbeddingHistogramWeight float64 `mapstructure:"embedding_histogram_weight"`
	EmbeddingTitleWeight     float64 `mapstructure:"embedding_title_weight"`
	EmbeddingHardFloor       float64 `mapstructure:"embedding_hard_floor"`
	EmbeddingSoftFloor       float64 `mapstructure:"embedding_soft_floor"`
	EmbeddingHistogramFloor  float64 `mapstructure:"embedding_histogram_floor"`

	FeatureWeight          float64 `mapstructure:"feature_weight"`
	FeatureHistogramWeight float64 `mapstructure:"feature_histogram_weight"`
	FeatureTitleWeight     float64 `mapstructure:"feature_title_weight"`
	// A zero feature score is always rejected. Below each floor the pair
	// additionally needs colour support of at least the paired histogram floor.
	FeatureHardFloor          float64 `mapstructure:"feature_hard_floor"`
	FeatureHardHistogramFloor float64 `mapstructure:"feature_hard_histogram_floor"`
	FeatureSoftFloor          float64 `mapstructure:"feature_soft_floor"`
	FeatureHistogramFloor     float64 `mapstructure:"feature_histogram_floor"`

	// NGWords are matched against normalized candidate titles before any
	// image work. See Config.SourcingNGWords for the full list.
	NGWords []string `mapstructure:"ng_words"`

	MinPriceCNY   float64 `mapstructure:"min_price_cny"`
	MinProfitRate float64 `mapstructure:"min_profit_rate"`
	MaxProfitRate float64 `mapstructure:"max_profit_rate"`
	MaxCandidates int     `mapstructure:"max_candidates"`
}

type ProfitConfig struct {
	ExchangeRate        float64            `mapstructure:"exchange_rate"`
	DomesticShippingCNY float64            `mapstructure:"domestic_shipping_cny"`
	AgentFeeRate        float64            `mapstructure:"agent_fee_rate"`
	ShippingPerKgCNY    float64            `mapstructure:"shipping_per_kg_cny"`
	CustomsRate         float64            `mapstructure:"customs_rate"`
	DefaultWeightKG     float64            `mapstructure:"default_weight_kg"`
	DefaultDimensions   []float64          `mapstructure:"default_dimensions"`
	ReferralRates       map[string]float64 `mapstructure:"referral_rates"`
}

// FeeTier is one fulfillment fee bracket.
type FeeTier struct {
	MaxDimensionSum float64 `mapstructure:"max_dimension_sum"`
	MaxWeightKG     float64 `mapstructure:"max_weight_kg"`
	Fee             int     `mapstructure:"fee"`
}

type FeesConfig struct {
	Small      FeeTier   `mapstructure:"small"`
	Standard   []FeeTier `mapstructure:"standard"`
	Large      []FeeTier `mapstructure:"large"`
	DefaultFee int       `mapstructure:"default_fee"`
}

type ExploreConfig struct {
	StatePath               string        `mapstructure:"state_path"`
	MaxKeywords             int           `mapstructure:"max_keywords"`
	MaxDurationMinutes      int           `mapstructure:"max_duration_minutes"`
	MaxCandidates           int           `mapstructure:"max_candidates"`
	MaxDepth                int           `mapstructure:"max_depth"`
	MaxSuggestsPerSeed      int           `mapstructure:"max_suggests_per_seed"`
	MaxBigKeywordsPerExpand int           `mapstructure:"max_big_keywords_per_expand"`
	MaxTitleKeywords        int           `mapstructure:"max_title_keywords"`
	Cooldown                time.Duration `mapstructure:"cooldown"`
	DryRunThreshold         int           `mapstructure:"dry_run_threshold"`
	PruneFactor             float64       `mapstructure:"prune_factor"`
	InitialScore            float64       `mapstructure:"initial_score"`
	TitleRefillMinScore     float64       `mapstructure:"title_refill_min_score"`
	TitleRefillFactor       float64       `mapstructure:"title_refill_factor"`
	SeedRefillMinScore      float64       `mapstructure:"seed_refill_min_score"`
	SeedRefillFactor        float64       `mapstructure:"seed_refill_factor"`
	ExcludedKeywords        []string      `mapstructure:"excluded_keywords"`
	KeywordTimeout          time.Duration `mapstructure:"keyword_timeout"`
	BatchConcurrency        int           `mapstructure:"batch_concurrency"`
}

const (
	RegistryBackendFile  = "file"
	RegistryBackendRedis = "redis"
)

type RegistryConfig struct {
	Backend  string `mapstructure:"backend"`
	Path     string `mapstructure:"path"`
	RedisKey string `mapstructure:"redis_key"`
}

type EmbeddingConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	Model    string        `mapstructure:"model"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SourcingNGWords returns the words that disqualify a sourcing candidate by
// title: the destination-side prohibited keywords and excluded brands
// followed by matcher.ng_words.
func (c *Config) SourcingNGWords() []string {
	return slices.Concat(c.Filter.ProhibitedKeywords, c.Filter.ExcludedBrands, c.Matcher.NGWords)
}

// Load reads configuration from defaults, an optional YAML file, RESEARCH_*
// environment variables and the given command-line flags, in that order.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("RESEARCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	if flags != nil {
		for key, name := range flagKeys {
			if f := flags.Lookup(name); f != nil {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := structuredDefaults()
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the built-in configuration without consulting any source.
func Default() Config {
	v := viper.New()
	setDefaults(v)
	cfg := structuredDefaults()
	if err := v.Unmarshal(&cfg); err != nil {
		panic(fmt.Sprintf("config: built-in defaults do not decode: %v", err))
	}
	return cfg
}

// flagKeys maps configuration keys to the CLI flags that override them.
var flagKeys = map[string]string{
	"log_level":                    "log-level",
	"server_port":                  "port",
	"explore.max_keywords":         "max-keywords",
	"explore.max_duration_minutes": "max-minutes",
	"explore.max_candidates":       "max-candidates",
	"explore.state_path":           "state",
	"explore.batch_concurrency":    "concurrency",
	"browser.headless":             "headless",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")
	v.SetDefault("server_port", "8080")
	v.SetDefault("postgres_url", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)

	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.page_timeout", 60*time.Second)
	v.SetDefault("browser.max_tabs", 5)
	v.SetDefault("browser.request_delay", 2*time.Second)
	v.SetDefault("browser.user_data_dir", "output/browser_profile")

	v.SetDefault("search.base_url", "https://www.amazon.co.jp")
	v.SetDefault("search.max_results", 50)
	v.SetDefault("search.fetch_details", true)
	v.SetDefault("search.organic_only", true)
	v.SetDefault("search.suggest_url", "https://completion.amazon.co.jp/api/2017/suggestions")
	v.SetDefault("search.suggest_marketplace_id", "A1VC38T7YXB528")
	v.SetDefault("search.suggest_timeout", 10*time.Second)
	v.SetDefault("search.image_search_url", "https://s.1688.com/youyuan/index.htm")
	v.SetDefault("search.image_search_max_results", 20)
	v.SetDefault("search.image_fetch_timeout", 30*time.Second)
	v.SetDefault("search.login_url", "https://login.1688.com/member/signin.htm")

	v.SetDefault("filter.min_price", 1500)
	v.SetDefault("filter.max_price", 4000)
	v.SetDefault("filter.max_reviews", 50)
	v.SetDefault("filter.max_rating", 4.2)
	v.SetDefault("filter.min_rank", 5000)
	v.SetDefault("filter.max_rank", 50000)
	v.SetDefault("filter.max_variations", 5)
	v.SetDefault("filter.max_dimension_sum_cm", 100.0)
	v.SetDefault("filter.max_weight_kg", 9.0)

	v.SetDefault("sales.policy", SalesPolicyOptimistic)

	v.SetDefault("matcher.image_size", 300)
	v.SetDefault("matcher.max_keypoints", 500)
	v.SetDefault("matcher.fast_threshold", 20)
	v.SetDefault("matcher.ratio_threshold", 0.75)
	v.SetDefault("matcher.fetch_concurrency", 4)
	v.SetDefault("matcher.embedding_weight", 0.6)
	v.SetDefault("matcher.embedding_histogram_weight", 0.2)
	v.SetDefault("matcher.embedding_title_weight", 0.2)
	v.SetDefault("matcher.embedding_hard_floor", 0.25)
	v.SetDefault("matcher.embedding_soft_floor", 0.35)
	v.SetDefault("matcher.embedding_histogram_floor", 0.3)
	v.SetDefault("matcher.feature_weight", 0.5)
	v.SetDefault("matcher.feature_histogram_weight", 0.3)
	v.SetDefault("matcher.feature_title_weight", 0.2)
	v.SetDefault("matcher.feature_hard_floor", 0.02)
	v.SetDefault("matcher.feature_hard_histogram_floor", 0.4)
	v.SetDefault("matcher.feature_soft_floor", 0.03)
	v.SetDefault("matcher.feature_histogram_floor", 0.6)
	v.SetDefault("matcher.min_price_cny", 0.5)
	v.SetDefault("matcher.min_profit_rate", 0.0)
	v.SetDefault("matcher.max_profit_rate", 0.5)
	v.SetDefault("matcher.max_candidates", 5)

	v.SetDefault("profit.exchange_rate", 23.0)
	v.SetDefault("profit.domestic_shipping_cny", 2.0)
	v.SetDefault("profit.agent_fee_rate", 0.03)
	v.SetDefault("profit.shipping_per_kg_cny", 10.0)
	v.SetDefault("profit.customs_rate", 0.10)
	v.SetDefault("profit.default_weight_kg", 0.5)

	v.SetDefault("fees.default_fee", 434)

	v.SetDefault("explore.state_path", "output/explore_state.json")
	v.SetDefault("explore.max_keywords", 50)
	v.SetDefault("explore.max_duration_minutes", 120)
	v.SetDefault("explore.max_candidates", 0)
	v.SetDefault("explore.max_depth", 3)
	v.SetDefault("explore.max_suggests_per_seed", 5)
	v.SetDefault("explore.max_big_keywords_per_expand", 5)
	v.SetDefault("explore.max_title_keywords", 3)
	v.SetDefault("explore.cooldown", 72*time.Hour)
	v.SetDefault("explore.dry_run_threshold", 5)
	v.SetDefault("explore.prune_factor", 0.5)
	v.SetDefault("explore.initial_score", 50.0)
	v.SetDefault("explore.title_refill_min_score", 30.0)
	v.SetDefault("explore.title_refill_factor", 0.8)
	v.SetDefault("explore.seed_refill_min_score", 20.0)
	v.SetDefault("explore.seed_refill_factor", 0.6)
	v.SetDefault("explore.keyword_timeout", 20*time.Minute)
	v.SetDefault("explore.batch_concurrency", 5)

	v.SetDefault("registry.backend", RegistryBackendFile)
	v.SetDefault("registry.path", "output/known_products.json")
	v.SetDefault("registry.redis_key", "research:known_products")

	v.SetDefault("embedding.endpoint", "")
	v.SetDefault("embedding.model", "dinov2-small")
	v.SetDefault("embedding.timeout", 30*time.Second)
}

// structuredDefaults carries the map and list defaults that do not fit
// viper's flat key space. Sources overwrite or extend them on Unmarshal.
func structuredDefaults() Config {
	return Config{
		Browser: BrowserConfig{
			UserAgents: []string{
				"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
				"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
				"Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
			},
		},
		Filter: FilterConfig{
			ExcludedCategories: []string{"本・コミック・雑誌", "kindleストア", "ミュージック", "dvd", "ゲーム", "食品・飲料・お酒", "ドラッグストア", "医薬品"},
			ProhibitedKeywords: []string{"医薬品", "コンタクト", "日本製", "電池", "バッテリー", "リチウム", "スプレー", "ガス", "食品", "サプリ"},
			CategoryRankThresholds: map[string]RankThreshold{
				"default":      {FBA: 50000, FBM: 30000},
				"home_kitchen": {FBA: 50000, FBM: 30000},
				"toys":         {FBA: 40000, FBM: 25000},
				"beauty":       {FBA: 30000, FBM: 20000},
				"electronics":  {FBA: 30000, FBM: 15000},
				"pet_supplies": {FBA: 30000, FBM: 20000},
				"sports":       {FBA: 40000, FBM: 25000},
				"diy_tools":    {FBA: 40000, FBM: 25000},
				"automotive":   {FBA: 30000, FBM: 20000},
				"office":       {FBA: 40000, FBM: 25000},
			},
			CategoryAliases: map[string]string{
				"ホーム&キッチン":    "home_kitchen",
				"ホーム＆キッチン":    "home_kitchen",
				"キッチン用品":      "home_kitchen",
				"ドラッグストア":     "drugstore",
				"カー・バイク用品":    "automotive",
				"ペット用品":       "pet_supplies",
				"おもちゃ":        "toys",
				"ホビー":         "toys",
				"文房具・オフィス用品":  "office",
				"diy・工具・ガーデン": "diy_tools",
				"スポーツ&アウトドア":  "sports",
				"スポーツ＆アウトドア":  "sports",
				"産業・研究開発用品":   "industrial",
				"パソコン・周辺機器":   "pc",
				"楽器・音響機器":     "musical_instruments",
				"ビューティー":      "beauty",
				"家電&カメラ":      "electronics",
				"家電＆カメラ":      "electronics",
			},
		},
		Matcher: MatcherConfig{
			NGWords: []string{
				"迪士尼", "米奇", "米妮", "维尼", "冰雪奇缘", "disney",
				"三丽鸥", "凯蒂猫", "kitty", "美乐蒂", "库洛米", "大耳狗",
				"漫威", "蜘蛛侠", "蝙蝠侠", "超人", "复仇者",
				"宝可梦", "皮卡丘", "pokemon", "任天堂", "nintendo", "马里奥",
				"海贼王", "航海王", "鬼灭之刃", "火影忍者", "龙珠", "哆啦a梦", "机器猫", "吉卜力", "龙猫",
				"乐高", "lego", "芭比", "barbie", "星球大战", "史努比", "snoopy", "小黄人",
				"耐克", "nike", "阿迪达斯", "adidas", "彪马", "puma",
				"古驰", "gucci", "路易威登", "lv", "香奈儿", "chanel", "爱马仕", "hermes", "普拉达", "prada",
			},
		},
		Sales: SalesConfig{
			Table: []RankUnits{
				{MaxRank: 3000, Units: 300},
				{MaxRank: 10000, Units: 100},
				{MaxRank: 30000, Units: 30},
				{MaxRank: 100000, Units: 10},
				{MaxRank: 300000, Units: 3},
				{MaxRank: 1000000, Units: 1},
			},
			Coefficients: map[string]PowerLaw{
				"home_kitchen": {A: 5000, B: 0.75},
				"toys":         {A: 3500, B: 0.80},
				"beauty":       {A: 8000, B: 0.70},
				"electronics":  {A: 2500, B: 0.85},
				"default":      {A: 4000, B: 0.78},
			},
		},
		Profit: ProfitConfig{
			DefaultDimensions: []float64{20, 15, 10},
			ReferralRates: map[string]float64{
				"toys_hobbies":            0.10,
				"diy_tools":               0.15,
				"home_kitchen":            0.15,
				"electronics":             0.08,
				"electronics_accessories": 0.10,
				"beauty":                  0.10,
				"sports":                  0.10,
				"pet_supplies":            0.15,
				"garden":                  0.15,
				"office":                  0.15,
				"automotive":              0.10,
				"baby":                    0.15,
				"default":                 0.15,
			},
		},
		Fees: FeesConfig{
			Small: FeeTier{MaxDimensionSum: 45, MaxWeightKG: 0.25, Fee: 288},
			Standard: []FeeTier{
				{MaxDimensionSum: 60, MaxWeightKG: 2, Fee: 318},
				{MaxDimensionSum: 80, MaxWeightKG: 5, Fee: 434},
				{MaxDimensionSum: 100, MaxWeightKG: 9, Fee: 514},
			},
			Large: []FeeTier{
				{MaxDimensionSum: 140, MaxWeightKG: 15, Fee: 603},
				{MaxDimensionSum: 170, MaxWeightKG: 25, Fee: 712},
				{MaxDimensionSum: 200, MaxWeightKG: 40, Fee: 1014},
			},
		},
	}
}
