package main

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nilsaxelsson/musiclib/internal/cachepool"
	"github.com/nilsaxelsson/musiclib/internal/progressbus"
	"github.com/nilsaxelsson/musiclib/internal/transcode"
	"github.com/nilsaxelsson/musiclib/pkg/objstore"
)

var (
	cacheEncoder string
	cacheQuality string
	cacheWorkers int
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Warm or clear the transcode cache",
}

func (a *app) transcodeCache() (*transcode.Cache, error) {
	fs, err := objstore.NewLocalFS(a.cfg.CacheDir)
	if err != nil {
		return nil, err
	}
	return transcode.New(fs, cacheEncoder, a.cfg.TranscodeTimeout), nil
}

var cacheWarmCmd = &cobra.Command{
	Use:   "warm [path...]",
	Short: "Ensure every given source file has a cached derivative at the given quality",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.idx.Close()

		cache, err := a.transcodeCache()
		if err != nil {
			return err
		}

		quality := transcode.Quality(cacheQuality)
		if !transcode.ValidQuality(quality) {
			return fmt.Errorf("unknown quality %q: must be one of original, high, medium, low", cacheQuality)
		}
		jobs := make([]cachepool.Job, len(args))
		for i, p := range args {
			jobs[i] = cachepool.Job{Path: p, Quality: quality}
		}

		pool := cachepool.New(cache, cacheWorkers)
		bus := progressbus.New(a.cfg.ListenerTimeout)
		taskID := uuid.NewString()

		listenDone := make(chan struct{})
		go func() {
			defer close(listenDone)
			_ = bus.Listen(ctx, taskID, func(e progressbus.Event) error {
				if e.Type != "progress" {
					return nil
				}
				log.WithFields(logrus.Fields{"current": e.Current, "total": e.Total}).Info(e.Message)
				return nil
			})
		}()

		bus.Emit(taskID, progressbus.Event{Type: "progress", Status: progressbus.StatusStarted, Total: len(jobs)})
		results := pool.WarmParallel(ctx, jobs, func(done, total int, r cachepool.Result) {
			status := progressbus.StatusProgress
			msg := r.Job.Path
			if r.Err != nil {
				msg = fmt.Sprintf("%s: %v", r.Job.Path, r.Err)
			}
			bus.Emit(taskID, progressbus.Event{Type: "progress", Status: status, Current: done, Total: total, Message: msg})
		})

		failed := 0
		for _, r := range results {
			if r.Err != nil {
				failed++
				fmt.Printf("FAIL %s: %v\n", r.Job.Path, r.Err)
			} else {
				fmt.Printf("OK   %s\n", r.Job.Path)
			}
		}
		bus.Emit(taskID, progressbus.Event{Type: "progress", Status: progressbus.StatusCompleted, Current: len(jobs), Total: len(jobs)})
		<-listenDone

		if failed > 0 {
			return fmt.Errorf("%d of %d jobs failed", failed, len(jobs))
		}
		return nil
	},
}

var cacheMaxAgeDays int

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove cached derivatives older than the configured age",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()
		a, err := openApp(ctx)
		if err != nil {
			return err
		}
		defer a.idx.Close()

		cache, err := a.transcodeCache()
		if err != nil {
			return err
		}

		maxAge := time.Duration(cacheMaxAgeDays) * 24 * time.Hour
		removed, err := cache.Clear(ctx, maxAge)
		if err != nil {
			return err
		}
		fmt.Printf("removed %d cached derivatives\n", removed)
		return nil
	},
}

func init() {
	cacheCmd.PersistentFlags().StringVar(&cacheEncoder, "encoder", "ffmpeg", "path to the external audio encoder binary")

	cacheWarmCmd.Flags().StringVar(&cacheQuality, "quality", string(transcode.QualityHigh), "transcode quality: original, high, medium, or low")
	cacheWarmCmd.Flags().IntVar(&cacheWorkers, "workers", 4, "maximum number of concurrent transcodes")
	cacheCmd.AddCommand(cacheWarmCmd)

	cacheClearCmd.Flags().IntVar(&cacheMaxAgeDays, "max-age-days", 30, "remove derivatives older than this many days (0 clears everything)")
	cacheCmd.AddCommand(cacheClearCmd)

	rootCmd.AddCommand(cacheCmd)
}
