package cmd

import (
	"fmt"
	"time"

	"moodfm/cache"

	"github.com/spf13/cobra"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Redis cache utilities",
}

var cachePingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Connect to Redis and run a write/read round trip",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.RedisAddr == "" {
			return fmt.Errorf("REDIS_ADDR is not set, the cache is disabled")
		}
		fmt.Printf("Redis: %s, DB: %d\n", cfg.RedisAddr, cfg.RedisDB)

		c, err := cache.NewRedisCache(cmd.Context(), cache.RedisConfig{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		if err != nil {
			return err
		}
		defer c.Close()

		const key = "moodfm:ping"
		want := time.Now().UTC().Format(time.RFC3339Nano)
		if err := c.SetJSON(cmd.Context(), key, want, time.Minute); err != nil {
			return err
		}
		var got string
		hit, err := c.GetJSON(cmd.Context(), key, &got)
		if err != nil {
			return err
		}
		if !hit || got != want {
			return fmt.Errorf("read back %q, wrote %q", got, want)
		}
		if err := c.Delete(cmd.Context(), key); err != nil {
			return err
		}
		fmt.Println("Redis round trip OK.")
		return nil
	},
}

func init() {
	cacheCmd.AddCommand(cachePingCmd)
	rootCmd.AddCommand(cacheCmd)
}
