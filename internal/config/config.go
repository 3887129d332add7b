package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config holds every tunable the engine's schedulers and link-analysis
// algorithms read. It is built through WithDefault(...).Build() or loaded
// from a JSON file via WithConfigFile, using a builder+DTO pattern.
type Config struct {
	//===============
	// Store
	//===============
	// Root directory the PageDB, schedule tables, and mmap-backed arrays
	// persist under.
	storeDir string
	// Persist controls whether the store survives process restart. When
	// false the engine may use a throwaway/in-memory-backed directory.
	persist bool

	//===============
	// BF scheduler
	//===============
	// Soft and hard ceilings on crawl rate for a single domain, in pages
	// per DomainTemp window. Soft throttles, hard refuses.
	maxSoftDomainCrawlRate float32
	maxHardDomainCrawlRate float32
	// Minimum number of pages added since the last score update before the
	// background update thread runs again; the trigger is
	// max(pagesThreshold, fraction * pages counted at the last update).
	pagesThreshold float64
	// Multiplier of the page count at the last score update in the
	// background update thread's trigger (see pagesThreshold).
	fraction float64
	// Number of (hash, id) rows the background update thread rewrites per
	// write transaction.
	updateBatchSize int
	// Number of discrete steps the domain crawl-rate throttle is divided
	// into between the soft and hard ceilings.
	crawlRateSteps int

	//===============
	// Freq scheduler
	//===============
	// Relative margin on a page's target frequency: the schedule head is
	// held until 1/(freq*(1+margin)) has passed since its last crawl. A
	// negative margin disables this check.
	margin float64
	// Pages crawled this many times or more are neither seeded by
	// load_simple nor dispatched by request; 0 disables the cap.
	maxNCrawls int

	//===============
	// PageRank
	//===============
	prDamping          float32
	prPrecision        float32
	prMaxLoops         int
	prUseContentScores bool

	//===============
	// HITS
	//===============
	hitsPrecision        float32
	hitsMaxLoops         int
	hitsUseContentScores bool
}

type configDTO struct {
	StoreDir               string  `json:"storeDir"`
	Persist                bool    `json:"persist,omitempty"`
	MaxSoftDomainCrawlRate float32 `json:"maxSoftDomainCrawlRate,omitempty"`
	MaxHardDomainCrawlRate float32 `json:"maxHardDomainCrawlRate,omitempty"`
	PagesThreshold         float64 `json:"pagesThreshold,omitempty"`
	Fraction               float64 `json:"fraction,omitempty"`
	UpdateBatchSize        int     `json:"updateBatchSize,omitempty"`
	CrawlRateSteps         int     `json:"crawlRateSteps,omitempty"`
	Margin                 float64 `json:"margin,omitempty"`
	MaxNCrawls             int     `json:"maxNCrawls,omitempty"`
	PRDamping              float32 `json:"prDamping,omitempty"`
	PRPrecision            float32 `json:"prPrecision,omitempty"`
	PRMaxLoops             int     `json:"prMaxLoops,omitempty"`
	PRUseContentScores     bool    `json:"prUseContentScores,omitempty"`
	HITSPrecision          float32 `json:"hitsPrecision,omitempty"`
	HITSMaxLoops           int     `json:"hitsMaxLoops,omitempty"`
	HITSUseContentScores   bool    `json:"hitsUseContentScores,omitempty"`
}

func newConfigFromDTO(dto configDTO) (Config, error) {
	cfg, err := WithDefault(dto.StoreDir).Build()
	if err != nil {
		return Config{}, err
	}

	cfg.persist = dto.Persist

	if dto.MaxSoftDomainCrawlRate != 0 {
		cfg.maxSoftDomainCrawlRate = dto.MaxSoftDomainCrawlRate
	}
	if dto.MaxHardDomainCrawlRate != 0 {
		cfg.maxHardDomainCrawlRate = dto.MaxHardDomainCrawlRate
	}
	if dto.PagesThreshold != 0 {
		cfg.pagesThreshold = dto.PagesThreshold
	}
	if dto.Fraction != 0 {
		cfg.fraction = dto.Fraction
	}
	if dto.UpdateBatchSize != 0 {
		cfg.updateBatchSize = dto.UpdateBatchSize
	}
	if dto.CrawlRateSteps != 0 {
		cfg.crawlRateSteps = dto.CrawlRateSteps
	}
	if dto.Margin != 0 {
		cfg.margin = dto.Margin
	}
	// MaxNCrawls: 0 is a valid "no cap" value, so always take the DTO as-is.
	cfg.maxNCrawls = dto.MaxNCrawls

	if dto.PRDamping != 0 {
		cfg.prDamping = dto.PRDamping
	}
	if dto.PRPrecision != 0 {
		cfg.prPrecision = dto.PRPrecision
	}
	if dto.PRMaxLoops != 0 {
		cfg.prMaxLoops = dto.PRMaxLoops
	}
	cfg.prUseContentScores = dto.PRUseContentScores

	if dto.HITSPrecision != 0 {
		cfg.hitsPrecision = dto.HITSPrecision
	}
	if dto.HITSMaxLoops != 0 {
		cfg.hitsMaxLoops = dto.HITSMaxLoops
	}
	cfg.hitsUseContentScores = dto.HITSUseContentScores

	return cfg, nil
}

func WithConfigFile(path string) (Config, error) {
	_, err := os.Stat(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrFileDoesNotExist, err.Error())
	}
	configContent, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrReadConfigFail, err.Error())
	}
	cfgDTO := configDTO{}

	err = json.Unmarshal(configContent, &cfgDTO)
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", ErrConfigParsingFail, err.Error())
	}

	cfg, err := newConfigFromDTO(cfgDTO)
	if err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// WithDefault creates a new Config rooted at storeDir with default values
// for every other field. storeDir is mandatory and must not be empty — an
// error will be returned from Build if it is.
func WithDefault(storeDir string) *Config {
	defaultConfig := Config{
		storeDir: storeDir,
		persist:  true,

		maxSoftDomainCrawlRate: 0.25,
		maxHardDomainCrawlRate: 2.0,
		pagesThreshold:         0.05,
		fraction:               0.01,
		updateBatchSize:        100,
		crawlRateSteps:         5,

		margin:     0.5,
		maxNCrawls: 0,

		prDamping:          0.85,
		prPrecision:        1e-4,
		prMaxLoops:         50,
		prUseContentScores: false,

		hitsPrecision:        1e-4,
		hitsMaxLoops:         50,
		hitsUseContentScores: false,
	}
	return &defaultConfig
}

func (c *Config) WithStoreDir(dir string) *Config {
	c.storeDir = dir
	return c
}

func (c *Config) WithPersist(persist bool) *Config {
	c.persist = persist
	return c
}

func (c *Config) WithMaxSoftDomainCrawlRate(rate float32) *Config {
	c.maxSoftDomainCrawlRate = rate
	return c
}

func (c *Config) WithMaxHardDomainCrawlRate(rate float32) *Config {
	c.maxHardDomainCrawlRate = rate
	return c
}

func (c *Config) WithPagesThreshold(threshold float64) *Config {
	c.pagesThreshold = threshold
	return c
}

func (c *Config) WithFraction(fraction float64) *Config {
	c.fraction = fraction
	return c
}

func (c *Config) WithUpdateBatchSize(size int) *Config {
	c.updateBatchSize = size
	return c
}

func (c *Config) WithCrawlRateSteps(steps int) *Config {
	c.crawlRateSteps = steps
	return c
}

func (c *Config) WithMargin(margin float64) *Config {
	c.margin = margin
	return c
}

func (c *Config) WithMaxNCrawls(max int) *Config {
	c.maxNCrawls = max
	return c
}

func (c *Config) WithPageRankDamping(damping float32) *Config {
	c.prDamping = damping
	return c
}

func (c *Config) WithPageRankPrecision(precision float32) *Config {
	c.prPrecision = precision
	return c
}

func (c *Config) WithPageRankMaxLoops(loops int) *Config {
	c.prMaxLoops = loops
	return c
}

func (c *Config) WithPageRankUseContentScores(use bool) *Config {
	c.prUseContentScores = use
	return c
}

func (c *Config) WithHITSPrecision(precision float32) *Config {
	c.hitsPrecision = precision
	return c
}

func (c *Config) WithHITSMaxLoops(loops int) *Config {
	c.hitsMaxLoops = loops
	return c
}

func (c *Config) WithHITSUseContentScores(use bool) *Config {
	c.hitsUseContentScores = use
	return c
}

func (c *Config) Build() (Config, error) {
	if c.storeDir == "" {
		return Config{}, fmt.Errorf("%w: storeDir cannot be empty", ErrInvalidConfig)
	}
	if c.maxSoftDomainCrawlRate <= 0 {
		return Config{}, fmt.Errorf("%w: maxSoftDomainCrawlRate must be positive", ErrInvalidConfig)
	}
	if c.maxHardDomainCrawlRate < c.maxSoftDomainCrawlRate {
		return Config{}, fmt.Errorf("%w: maxHardDomainCrawlRate must be >= maxSoftDomainCrawlRate", ErrInvalidConfig)
	}
	if c.updateBatchSize <= 0 {
		return Config{}, fmt.Errorf("%w: updateBatchSize must be positive", ErrInvalidConfig)
	}
	if c.crawlRateSteps <= 0 {
		return Config{}, fmt.Errorf("%w: crawlRateSteps must be positive", ErrInvalidConfig)
	}
	if c.prDamping <= 0 || c.prDamping >= 1 {
		return Config{}, fmt.Errorf("%w: prDamping must be in (0, 1)", ErrInvalidConfig)
	}
	if c.maxNCrawls < 0 {
		return Config{}, fmt.Errorf("%w: maxNCrawls must be >= 0", ErrInvalidConfig)
	}

	return *c, nil
}

func (c Config) StoreDir() string {
	return c.storeDir
}

func (c Config) Persist() bool {
	return c.persist
}

func (c Config) MaxSoftDomainCrawlRate() float32 {
	return c.maxSoftDomainCrawlRate
}

func (c Config) MaxHardDomainCrawlRate() float32 {
	return c.maxHardDomainCrawlRate
}

func (c Config) PagesThreshold() float64 {
	return c.pagesThreshold
}

func (c Config) Fraction() float64 {
	return c.fraction
}

func (c Config) UpdateBatchSize() int {
	return c.updateBatchSize
}

func (c Config) CrawlRateSteps() int {
	return c.crawlRateSteps
}

func (c Config) Margin() float64 {
	return c.margin
}

func (c Config) MaxNCrawls() int {
	return c.maxNCrawls
}

func (c Config) PageRankDamping() float32 {
	return c.prDamping
}

func (c Config) PageRankPrecision() float32 {
	return c.prPrecision
}

func (c Config) PageRankMaxLoops() int {
	return c.prMaxLoops
}

func (c Config) PageRankUseContentScores() bool {
	return c.prUseContentScores
}

func (c Config) HITSPrecision() float32 {
	return c.hitsPrecision
}

func (c Config) HITSMaxLoops() int {
	return c.hitsMaxLoops
}

func (c Config) HITSUseContentScores() bool {
	return c.hitsUseContentScores
}
