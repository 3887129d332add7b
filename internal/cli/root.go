// Package cli implements the pagefrontier command-line surface (§6.S1):
// small inspection and maintenance commands layered over PageDB,
// BFScheduler, and FreqScheduler. It never crawls anything itself —
// fetching is out of scope (§1) — it only reads and repairs the stores
// those components persist.
package cmd

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/rohmanhakim/pagefrontier/internal/bfscheduler"
	"github.com/rohmanhakim/pagefrontier/internal/build"
	"github.com/rohmanhakim/pagefrontier/internal/config"
	"github.com/rohmanhakim/pagefrontier/internal/edgestream"
	"github.com/rohmanhakim/pagefrontier/internal/freqscheduler"
	"github.com/rohmanhakim/pagefrontier/internal/pagedb"
	"github.com/rohmanhakim/pagefrontier/internal/scorer"
	"github.com/rohmanhakim/pagefrontier/pkg/failure"
)

var (
	cfgFile  string
	storeDir string
	persist  bool
	outFile  string
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "pagefrontier",
	Short: "Inspect and maintain a pagefrontier crawl-frontier store.",
	Long: `pagefrontier is a local-only inspection and maintenance tool for the
page database, best-first schedule, and frequency schedule an embedding
crawler persists through this module.

It never fetches a page itself: "db info", "db backlinks", and "db search"
read the page database; "bf reload" and "freq dump" repair or report on
the two scheduler tables.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main(). It only needs to happen
// once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config-file", "", "config file path (e.g., /home/myuser/config.json)")
	rootCmd.PersistentFlags().StringVar(&storeDir, "store-dir", "", "root directory the page database and schedule tables are persisted under")
	rootCmd.PersistentFlags().BoolVar(&persist, "persist", true, "keep the store on disk after the command exits")

	dbInfoCmd.Flags().StringVar(&outFile, "out", "", "write the report to this file instead of stdout")

	dbEdgesDumpCmd.Flags().StringVar(&outFile, "out", "", "write the edge dump to this file instead of stdout")

	dbEdgesCmd.AddCommand(dbEdgesDumpCmd, dbEdgesImportCmd)
	dbCmd.AddCommand(dbInfoCmd, dbBacklinksCmd, dbSearchCmd, dbEdgesCmd)
	bfCmd.AddCommand(bfReloadCmd)
	freqCmd.AddCommand(freqDumpCmd)
	rootCmd.AddCommand(dbCmd, bfCmd, freqCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the pagefrontier build version.",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Println(build.FullVersion())
		return nil
	},
}

// loadConfig resolves the store the command operates against: a config
// file takes precedence over the --store-dir/--persist flags.
func loadConfig() (config.Config, error) {
	if cfgFile != "" {
		return config.WithConfigFile(cfgFile)
	}
	if storeDir == "" {
		return config.Config{}, fmt.Errorf("%w: --store-dir is required", config.ErrInvalidConfig)
	}
	return config.WithDefault(storeDir).WithPersist(persist).Build()
}

// printFailureChain writes a ClassifiedError's full causal chain plus its
// terminal Kind/Severity to stderr (§7, "CLI tools ... print the full
// ClassifiedError chain").
func printFailureChain(action string, cerr failure.ClassifiedError) {
	fmt.Fprintf(os.Stderr, "%s: %s (kind=%s, severity=%v)\n", action, cerr.Error(), cerr.Kind(), severityName(cerr.Severity()))
}

func severityName(s failure.Severity) string {
	if s == failure.SeverityRecoverable {
		return "recoverable"
	}
	return "fatal"
}

func openDB(cfg config.Config) (*pagedb.DB, error) {
	db, err := pagedb.Open(cfg.StoreDir(), pagedb.Options{Persist: cfg.Persist()})
	if err != nil {
		return nil, err
	}
	return db, nil
}

// ==========================================================================
// db info / db backlinks / db search
// ==========================================================================

var dbCmd = &cobra.Command{
	Use:   "db",
	Short: "Inspect the page database.",
}

var dbInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Print n_pages and aggregate crawl counts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDBInfo()
	},
}

func runDBInfo() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	var out io.Writer = os.Stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return fmt.Errorf("db info: open --out file: %w", err)
		}
		defer f.Close()
		w := bufio.NewWriter(f)
		defer w.Flush()
		out = w
	}

	nPages, cerr := db.NPages()
	if cerr != nil {
		printFailureChain("db info", cerr)
		return cerr
	}

	var totalCrawls, totalChanges uint64
	stream, cerr := db.NewHashInfoStream()
	if cerr != nil {
		printFailureChain("db info", cerr)
		return cerr
	}
	defer stream.Close()
	entry, ok, cerr := stream.First()
	for cerr == nil && ok {
		totalCrawls += entry.Info.NCrawls
		totalChanges += entry.Info.NChanges
		entry, ok, cerr = stream.Next()
	}
	if cerr != nil {
		printFailureChain("db info", cerr)
		return cerr
	}

	fmt.Fprintf(out, "n_pages: %d\n", nPages)
	fmt.Fprintf(out, "total_crawls: %d\n", totalCrawls)
	fmt.Fprintf(out, "total_changes: %d\n", totalChanges)
	return nil
}

var dbBacklinksCmd = &cobra.Command{
	Use:   "backlinks HEXHASH",
	Short: "Walk the link graph one hop back from a page hash.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDBBacklinks(args[0])
	},
}

func runDBBacklinks(hexHash string) error {
	hash, err := parseHexHash(hexHash)
	if err != nil {
		return err
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	seen := make(map[uint64]bool)
	seen[hash] = true
	cur := hash
	for {
		info, found, cerr := db.GetInfo(cur)
		if cerr != nil {
			printFailureChain("db backlinks", cerr)
			return cerr
		}
		if !found {
			break
		}
		fmt.Printf("%016x %s\n", cur, info.URL)

		id, found, cerr := db.GetIdx(cur)
		if cerr != nil {
			printFailureChain("db backlinks", cerr)
			return cerr
		}
		if !found {
			break
		}
		predID, found, cerr := db.FindPredecessor(id)
		if cerr != nil {
			printFailureChain("db backlinks", cerr)
			return cerr
		}
		if !found {
			break
		}
		predHash, found, cerr := db.HashOf(predID)
		if cerr != nil {
			printFailureChain("db backlinks", cerr)
			return cerr
		}
		if !found || seen[predHash] {
			break // no predecessor, or a cycle in a graph not guaranteed acyclic
		}
		seen[predHash] = true
		cur = predHash
	}
	return nil
}

var dbSearchCmd = &cobra.Command{
	Use:   "search PATTERN",
	Short: "Regex-search crawled URLs.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDBSearch(args[0])
	},
}

func runDBSearch(pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("db search: invalid pattern: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	stream, cerr := db.NewHashInfoStream()
	if cerr != nil {
		printFailureChain("db search", cerr)
		return cerr
	}
	defer stream.Close()

	entry, ok, cerr := stream.First()
	for cerr == nil && ok {
		if re.MatchString(entry.Info.URL) {
			fmt.Printf("%016x %s\n", entry.Hash, entry.Info.URL)
		}
		entry, ok, cerr = stream.Next()
	}
	if cerr != nil {
		printFailureChain("db search", cerr)
		return cerr
	}
	return nil
}

// ==========================================================================
// db edges dump / db edges import
// ==========================================================================

var dbEdgesCmd = &cobra.Command{
	Use:   "edges",
	Short: "Bulk-dump or bulk-import the link graph as a compressed edge stream.",
}

var dbEdgesDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Encode every (from, to) edge in the link graph as a compressed edge stream.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDBEdgesDump()
	},
}

func runDBEdgesDump() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	stream, cerr := db.NewLinkStream()
	if cerr != nil {
		printFailureChain("db edges dump", cerr)
		return cerr
	}
	defer stream.Close()

	var links []edgestream.Link
	for l, ok := stream.Next(); ok; l, ok = stream.Next() {
		links = append(links, edgestream.Link{From: l.From, To: l.To})
	}

	frame, err := edgestream.Encode(links)
	if err != nil {
		return fmt.Errorf("db edges dump: encode: %w", err)
	}

	var out io.Writer = os.Stdout
	if outFile != "" {
		f, err := os.Create(outFile)
		if err != nil {
			return fmt.Errorf("db edges dump: open --out file: %w", err)
		}
		defer f.Close()
		out = f
	}
	_, err = out.Write(frame)
	return err
}

var dbEdgesImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Merge a compressed edge stream dumped by \"db edges dump\" into the link graph.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDBEdgesImport(args[0])
	},
}

func runDBEdgesImport(path string) error {
	frame, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("db edges import: read %s: %w", path, err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	dec, err := edgestream.NewDecoder(frame)
	if err != nil {
		return fmt.Errorf("db edges import: decode: %w", err)
	}
	defer dec.Close()

	var links []pagedb.Link
	for {
		l, ok, err := dec.Next()
		if err != nil {
			return fmt.Errorf("db edges import: decode: %w", err)
		}
		if !ok {
			break
		}
		links = append(links, pagedb.Link{From: l.From, To: l.To})
	}

	if cerr := db.ImportLinks(links); cerr != nil {
		printFailureChain("db edges import", cerr)
		return cerr
	}
	fmt.Printf("imported %d edges\n", len(links))
	return nil
}

func parseHexHash(s string) (uint64, error) {
	b, err := hex.DecodeString(s)
	if err != nil || len(b) != 8 {
		return 0, fmt.Errorf("invalid hex hash %q: must be 16 hex digits", s)
	}
	var h uint64
	for _, bb := range b {
		h = h<<8 | uint64(bb)
	}
	return h, nil
}

// ==========================================================================
// bf reload
// ==========================================================================

var bfCmd = &cobra.Command{
	Use:   "bf",
	Short: "Maintain the best-first schedule.",
}

// noopScorer satisfies scorer.Scorer for commands that only need
// BFScheduler's schedule-table plumbing, never its background re-scoring.
type noopScorer struct{}

func (noopScorer) Add(pagedb.PageInfo) float32     { return 0 }
func (noopScorer) Update() failure.ClassifiedError { return nil }
func (noopScorer) Get(uint64) (float32, float32)   { return 0, 0 }

var bfReloadCmd = &cobra.Command{
	Use:   "reload",
	Short: "Rebuild the best-first schedule from the page database.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runBFReload()
	},
}

func runBFReload() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sched, err := bfscheduler.Open(db, noopScorer{}, bfscheduler.Options{
		Dir:                    cfg.StoreDir(),
		Persist:                cfg.Persist(),
		MaxSoftDomainCrawlRate: cfg.MaxSoftDomainCrawlRate(),
		MaxHardDomainCrawlRate: cfg.MaxHardDomainCrawlRate(),
		PagesThreshold:         cfg.PagesThreshold(),
		Fraction:               cfg.Fraction(),
		UpdateBatchSize:        cfg.UpdateBatchSize(),
		CrawlRateSteps:         cfg.CrawlRateSteps(),
	})
	if err != nil {
		return err
	}
	defer sched.Close()

	if cerr := sched.Reload(); cerr != nil {
		printFailureChain("bf reload", cerr)
		return cerr
	}
	fmt.Println("bf schedule reloaded")
	return nil
}

// ==========================================================================
// freq dump
// ==========================================================================

var freqCmd = &cobra.Command{
	Use:   "freq",
	Short: "Inspect the frequency schedule.",
}

var freqDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print every (hash, due-time, freq) row in the frequency schedule.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runFreqDump()
	},
}

func runFreqDump() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	db, err := openDB(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	sched, err := freqscheduler.Open(db, freqscheduler.Options{
		Dir:        cfg.StoreDir(),
		Persist:    cfg.Persist(),
		Margin:     cfg.Margin(),
		MaxNCrawls: cfg.MaxNCrawls(),
	})
	if err != nil {
		return err
	}
	defer sched.Close()

	entries, cerr := sched.Dump()
	if cerr != nil {
		printFailureChain("freq dump", cerr)
		return cerr
	}
	for _, e := range entries {
		fmt.Printf("%016x %f %f\n", e.Hash, e.Key, e.Freq)
	}
	return nil
}

// ResetFlags restores every package-level flag to its default value, for
// test isolation between cobra command invocations.
func ResetFlags() {
	cfgFile = ""
	storeDir = ""
	persist = true
	outFile = ""
}

// Test helper functions to set flag values from tests, mirroring cobra's
// own package-level-var convention.
func SetConfigFileForTest(path string) { cfgFile = path }
func SetStoreDirForTest(dir string)    { storeDir = dir }
func SetPersistForTest(p bool)         { persist = p }
func SetOutFileForTest(path string)    { outFile = path }

// Test entry points that exercise the same code path as each cobra
// command's RunE, without going through cobra's argument parser.
func RunDBInfoForTest() error                     { return runDBInfo() }
func RunDBBacklinksForTest(hexHash string) error  { return runDBBacklinks(hexHash) }
func RunDBSearchForTest(pattern string) error     { return runDBSearch(pattern) }
func RunDBEdgesDumpForTest() error                { return runDBEdgesDump() }
func RunDBEdgesImportForTest(path string) error   { return runDBEdgesImport(path) }
func RunBFReloadForTest() error                   { return runBFReload() }
func RunFreqDumpForTest() error                   { return runFreqDump() }
func RunVersionForTest() error                    { fmt.Println(build.FullVersion()); return nil }

var _ scorer.Scorer = noopScorer{}
