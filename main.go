package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/utxob/Data-Recover-toll/config"
	"github.com/utxob/Data-Recover-toll/disk"
	"github.com/utxob/Data-Recover-toll/logger"
	"github.com/utxob/Data-Recover-toll/readers"
	"github.com/utxob/Data-Recover-toll/session"
	"github.com/utxob/Data-Recover-toll/utils"
)

var (
	configPath   string
	output       string
	logfile      string
	readerMode   string
	extensions   []string
	nameFilter   string
	maxSize      int64
	noRecursive  bool
	chunkSizeMiB int
	shards       int
	workers      int
	partitionNum int
	readTimeout  time.Duration
	hashFiles    string
	strategy     string
	resultsDB    string
	resultsJSONL string
	showResults  bool
)

var rootCmd = &cobra.Command{
	Use:   "recover",
	Short: "Recover deleted files from disks and images",
	Long: `recover reads a device, a raw image or an EWF/VMDK container without writing to it
and recovers files either from the filesystem metadata of deleted entries (NTFS, FAT32)
or by carving file signatures out of the raw bytes.`,
	SilenceUsage: true,
}

var deletedCmd = &cobra.Command{
	Use:   "deleted <source>",
	Short: "Recover deleted files from NTFS and FAT32 metadata",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "deleted", args[0])
	},
}

var carveCmd = &cobra.Command{
	Use:   "carve <source>",
	Short: "Carve files by their signatures",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return run(cmd, "carve", args[0])
	},
}

var partitionsCmd = &cobra.Command{
	Use:   "partitions <source>",
	Short: "List partitions and volumes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hD, err := readers.GetHandler(args[0], readerMode)
		if err != nil {
			return err
		}
		dsk := disk.New(hD)
		defer dsk.Close()
		if err := dsk.Process(-1); err != nil {
			return err
		}
		fmt.Print(dsk.ListPartitions())
		return nil
	},
}

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Print a configuration file with the default settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := config.Defaults().Marshal()
		if err != nil {
			return err
		}
		_, err = os.Stdout.Write(data)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logfile, "log", "", "write a log to this file")
	rootCmd.PersistentFlags().StringVar(&readerMode, "reader", "auto", "medium type: auto, raw, device, ewf, vmdk, physicalDrive")

	for _, cmd := range []*cobra.Command{deletedCmd, carveCmd} {
		flags := cmd.Flags()
		flags.StringVar(&configPath, "config", "", "YAML configuration, flags override it")
		flags.StringVarP(&output, "output", "o", "", "directory recovered files are written to")
		flags.StringSliceVarP(&extensions, "extensions", "e", nil, "recover only these extensions, comma separated")
		flags.StringVarP(&nameFilter, "name", "n", "", "recover only names containing this text")
		flags.Int64VarP(&maxSize, "max-size", "s", 0, "largest file size in bytes, 0 is unbounded")
		flags.BoolVar(&noRecursive, "no-recursive", false, "skip files inside subdirectories")
		flags.StringVar(&hashFiles, "hash", "", "hash recovered files: MD5, SHA1 or SHA256")
		flags.StringVar(&strategy, "strategy", "sequence", "name collisions: sequence or Id")
		flags.StringVar(&resultsDB, "results-db", "", "store results in this SQLite database")
		flags.StringVar(&resultsJSONL, "results-jsonl", "", "append results to this JSON lines file")
		flags.DurationVar(&readTimeout, "read-timeout", 0, "deadline of a single read, 0 disables it")
		flags.BoolVar(&showResults, "show", false, "print every result after the run")
	}
	deletedCmd.Flags().IntVar(&workers, "workers", 4, "records reconstructed concurrently")
	deletedCmd.Flags().IntVar(&partitionNum, "partition", -1, "partition to walk, -1 walks all")
	carveCmd.Flags().IntVar(&chunkSizeMiB, "chunk-size", 64, "carving chunk size in MiB")
	carveCmd.Flags().IntVar(&shards, "shards", 1, "ranges carved concurrently")

	rootCmd.AddCommand(deletedCmd, carveCmd, partitionsCmd, initConfigCmd)
}

// resolve layers the changed flags over the configuration file.
func resolve(cmd *cobra.Command, mode string, source string) (session.Config, error) {
	file := config.Defaults()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return session.Config{}, err
		}
		if file, err = config.Parse(data); err != nil {
			return session.Config{}, err
		}
	}
	file.Mode, file.Source = mode, source

	flags := cmd.Flags()
	changed := func(name string) bool {
		return flags.Changed(name) || (flags.Lookup(name) != nil && configPath == "")
	}
	if changed("output") {
		file.Output = output
	}
	if changed("extensions") {
		file.Filter.Extensions = extensions
	}
	if changed("name") {
		file.Filter.NameSubstring = nameFilter
	}
	if changed("max-size") {
		file.Filter.MaxSize = maxSize
	}
	if changed("no-recursive") {
		file.Filter.Recursive = !noRecursive
	}
	if changed("hash") {
		file.Hash = hashFiles
	}
	if changed("strategy") {
		file.Strategy = strategy
	}
	if changed("results-db") {
		file.Results.SQLite = resultsDB
	}
	if changed("results-jsonl") {
		file.Results.JSONL = resultsJSONL
	}
	if changed("read-timeout") {
		file.ReadTimeout = readTimeout
	}
	if changed("workers") {
		file.Workers = workers
	}
	if changed("partition") {
		file.Partition = partitionNum
	}
	if changed("chunk-size") {
		file.ChunkSize = chunkSizeMiB
	}
	if changed("shards") {
		file.Shards = shards
	}
	if rootCmd.PersistentFlags().Changed("reader") || configPath == "" {
		file.Reader = readerMode
	}
	if rootCmd.PersistentFlags().Changed("log") || configPath == "" {
		file.Log = logfile
	}
	return file.Resolve()
}

func run(cmd *cobra.Command, mode string, source string) error {
	cfg, err := resolve(cmd, mode, source)
	if err != nil {
		return err
	}
	if err := logger.InitializeAll(cfg.LogFile != "", cfg.LogFile); err != nil {
		return err
	}

	hD, err := readers.GetHandler(cfg.Source, cfg.ReaderMode)
	if err != nil {
		return err
	}
	progress := make(chan session.Progress, 1)
	recovery, err := session.New(cfg, hD, session.WithProgress(progress))
	if err != nil {
		hD.CloseHandler()
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			if update.Total == readers.SizeUnknown {
				fmt.Fprintf(os.Stderr, "\r%s bytes", utils.Stringify(update.Processed))
				continue
			}
			fmt.Fprintf(os.Stderr, "\r%s / %s bytes", utils.Stringify(update.Processed), utils.Stringify(update.Total))
		}
		fmt.Fprintln(os.Stderr)
	}()

	runErr := recovery.Run(ctx)
	close(progress)
	<-done

	rp := recovery.Reporter()
	if showResults {
		rp.Show(os.Stdout)
	}
	rp.Summary(os.Stdout)
	if err := recovery.Close(); err != nil && runErr == nil {
		runErr = err
	}
	return runErr
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
