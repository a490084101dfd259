package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/readaloud/readaloud/speech"
	"github.com/readaloud/readaloud/speech/cache"
)

var purgeAll bool

var purgeCmd = &cobra.Command{
	Use:   "purge",
	Short: "Evict stale audio from the artifact cache",
	Long:  paragraph(fmt.Sprintf("\n%s synthesized audio that is over the size budget or past its maximum age. Pass --all to empty the cache entirely.", keyword("Evict"))),
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		cfg, err := speech.LoadConfigFromViper()
		if err != nil {
			return err
		}
		if cfg.Cache.Dir == "" {
			cfg.Cache.Dir = defaultCacheDir()
		}

		store, err := cache.Open(cfg.Cache)
		if err != nil {
			return fmt.Errorf("unable to open audio cache: %w", err)
		}
		defer store.Close() //nolint:errcheck

		if purgeAll {
			if err := store.Purge(); err != nil {
				return fmt.Errorf("unable to purge audio cache: %w", err)
			}
			fmt.Println("Emptied audio cache at:", cfg.Cache.Dir)
			return nil
		}

		if err := store.Evict(); err != nil {
			return fmt.Errorf("unable to evict from audio cache: %w", err)
		}
		fmt.Printf("Cache holds %d artifacts (%s)\n", store.Len(), humanize.Bytes(uint64(store.Size()))) //nolint:gosec
		return nil
	},
}

func init() {
	purgeCmd.Flags().BoolVar(&purgeAll, "all", false, "remove every cached artifact")
}
