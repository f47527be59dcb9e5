package main

import (
	"context"
	"fmt"
	"io"
	"runtime"

	"github.com/grailbio/base/cmdutil"
	"github.com/grailbio/base/errorreporter"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"
	"github.com/grailbio/refmap/encoding/fasta"
	"github.com/grailbio/refmap/interval"
	"github.com/grailbio/refmap/refmap"
	"github.com/grailbio/refmap/toolexec"
	"v.io/x/lib/cmdline"
)

func newCmdIndex() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:  "index",
		Short: "Build the aligner and faidx indexes of the reference",
	}
	configFlag := cmd.Flags.String("config", "", "Config file")
	forceFlag := cmd.Flags.Bool("force", false, "Rebuild the indexes even if they exist")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) != 0 {
			return fmt.Errorf("index takes no arguments, but got %v", argv)
		}
		ctx, cancel := withSignals()
		defer cancel()
		cfg, err := loadConfig(ctx, *configFlag)
		if err != nil {
			return err
		}
		_, err = refmap.NewIndexer(cfg, toolexec.Local{}).Ensure(ctx, cfg.Reference, *forceFlag)
		return err
	})
	return cmd
}

// eachSample runs fn on every sample, using up to parallelism workers. A
// failed sample does not stop the others; the first error is returned.
func eachSample(parallelism int, names []string, fn func(i int, name string) error) error {
	if parallelism < 1 {
		parallelism = 1
	}
	if parallelism > len(names) {
		parallelism = len(names)
	}
	var errs errorreporter.T
	err := traverse.Each(parallelism, func(jobIdx int) error {
		for i := jobIdx; i < len(names); i += parallelism {
			if err := fn(i, names[i]); err != nil {
				log.Error.Printf("%s: %v", names[i], err)
				errs.Set(err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return errs.Err()
}

func newCmdRun() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "run",
		Short:    "Map samples to the reference and build their reference loci",
		ArgsName: "sample...",
	}
	configFlag := cmd.Flags.String("config", "", "Config file")
	parallelismFlag := cmd.Flags.Int("parallelism", runtime.NumCPU(), "Number of samples to run concurrently")
	forceIndexFlag := cmd.Flags.Bool("force-index", false, "Rebuild the reference indexes before mapping")
	statsFlag := cmd.Flags.String("stats", "", "Write the mapped and unmapped read counts to this TSV file instead of stdout")
	threadsFlag := cmd.Flags.Int("threads", 0, "Aligner and merger threads per sample. Overrides the config when positive")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return fmt.Errorf("run takes at least one sample name")
		}
		ctx, cancel := withSignals()
		defer cancel()
		cfg, err := loadConfig(ctx, *configFlag)
		if err != nil {
			return err
		}
		if *threadsFlag > 0 {
			cfg.Threads = *threadsFlag
		}
		if err := refmap.MakeDirs(cfg); err != nil {
			return err
		}
		runner := toolexec.Local{}
		if _, err := refmap.NewIndexer(cfg, runner).Ensure(ctx, cfg.Reference, *forceIndexFlag); err != nil {
			return err
		}
		ref, err := fasta.Open(ctx, cfg.Reference)
		if err != nil {
			return err
		}
		defer ref.Close(ctx) // nolint: errcheck

		p := refmap.NewPipeline(cfg, runner, ref)
		stats := make([]refmap.MapStats, len(argv))
		runErr := eachSample(*parallelismFlag, argv, func(i int, name string) error {
			rep, err := p.Run(ctx, refmap.NewSample(cfg, name))
			stats[i] = rep.Stats
			stats[i].Sample = name
			if err != nil {
				return err
			}
			log.Printf("%s: %d regions, %d loci, %d without reads, %d merge failures, %v",
				name, rep.Regions, rep.Clusters.Loci, rep.Clusters.NoReads, rep.Clusters.MergeFailed, rep.Elapsed)
			return nil
		})
		if err := writeStats(ctx, *statsFlag, env.Stdout, stats); err != nil && runErr == nil {
			runErr = err
		}
		return runErr
	})
	return cmd
}

func writeStats(ctx context.Context, path string, stdout io.Writer, stats []refmap.MapStats) (err error) {
	if path == "" {
		return refmap.WriteStats(stdout, stats)
	}
	out, err := file.Create(ctx, path)
	if err != nil {
		return err
	}
	defer file.CloseAndReport(ctx, out, &err)
	return refmap.WriteStats(out.Writer(ctx), stats)
}

func newCmdLoci() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "loci",
		Short:    "Rebuild the cluster store of mapped samples from their region lists",
		ArgsName: "sample...",
	}
	configFlag := cmd.Flags.String("config", "", "Config file")
	parallelismFlag := cmd.Flags.Int("parallelism", runtime.NumCPU(), "Number of samples to run concurrently")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return fmt.Errorf("loci takes at least one sample name")
		}
		ctx, cancel := withSignals()
		defer cancel()
		cfg, err := loadConfig(ctx, *configFlag)
		if err != nil {
			return err
		}
		ref, err := fasta.Open(ctx, cfg.Reference)
		if err != nil {
			return err
		}
		defer ref.Close(ctx) // nolint: errcheck
		p := refmap.NewPipeline(cfg, toolexec.Local{}, ref)
		return eachSample(*parallelismFlag, argv, func(_ int, name string) error {
			s := refmap.NewSample(cfg, name)
			regions, err := interval.ReadRegionsFromPath(ctx, s.Regions)
			if err != nil {
				return err
			}
			stats, err := p.BuildLoci(ctx, s, regions)
			if err != nil {
				return err
			}
			fmt.Fprintf(env.Stdout, "%s\t%d\t%d\n", name, stats.Regions, stats.Loci)
			return nil
		})
	})
	return cmd
}

func newCmdStats() *cmdline.Command {
	cmd := &cmdline.Command{
		Name:     "stats",
		Short:    "Print the mapped and unmapped read counts of mapped samples",
		ArgsName: "sample...",
	}
	configFlag := cmd.Flags.String("config", "", "Config file")
	inProcessFlag := cmd.Flags.Bool("in-process", false, "Count reads without running samtools")
	cmd.Runner = cmdutil.RunnerFunc(func(env *cmdline.Env, argv []string) error {
		if len(argv) == 0 {
			return fmt.Errorf("stats takes at least one sample name")
		}
		ctx, cancel := withSignals()
		defer cancel()
		cfg, err := loadConfig(ctx, *configFlag)
		if err != nil {
			return err
		}
		if *inProcessFlag {
			cfg.InProcessFlagstat = true
		}
		collector := refmap.NewStatsCollector(cfg, toolexec.Local{}, refmap.OpenBAM)
		var stats []refmap.MapStats
		for _, name := range argv {
			st, err := collector.Collect(ctx, refmap.NewSample(cfg, name))
			if err != nil {
				return err
			}
			stats = append(stats, st)
		}
		return refmap.WriteStats(env.Stdout, stats)
	})
	return cmd
}
