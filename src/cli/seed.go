package cli

import (
	"context"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/spf13/cobra"

	"github.com/zvdy/dbpulse/src/db"
)

func init() {
	seedCmd.Flags().IntVar(&seedCustomers, "customers", 50, "Number of customers to create; other tables scale with it")
	seedCmd.Flags().Uint64Var(&seedValue, "seed", 1, "Random seed")
	rootCmd.AddCommand(seedCmd)
}

var (
	seedCustomers int
	seedValue     uint64
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Fill the store with a synthetic dataset",
	RunE:  runSeed,
}

func runSeed(cmd *cobra.Command, args []string) error {
	if seedCustomers < 1 {
		return fmt.Errorf("--customers must be at least 1")
	}

	ctx := context.Background()
	a, err := openApp(ctx, true)
	if err != nil {
		return err
	}
	defer a.Close()

	rng := rand.New(rand.NewPCG(seedValue, seedValue))
	counts, err := db.Seed(ctx, a.monitor.Store(), seedCustomers, time.Now(), rng)
	if err != nil {
		return err
	}

	for _, schema := range db.DefaultSchemas {
		if n, ok := counts[schema.Name]; ok {
			fmt.Printf("%-16s %d\n", schema.Name, n)
		}
	}
	return nil
}
