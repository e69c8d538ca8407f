package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/pingcheck/internal/model"
	"github.com/user/pingcheck/internal/storage"
	"github.com/user/pingcheck/internal/targets"
)

var importSetName string

var targetsCmd = &cobra.Command{
	Use:   "targets",
	Short: "Manage saved target sets",
}

var targetsImportCmd = &cobra.Command{
	Use:   "import FILE",
	Short: "Save the targets of a file as a named set",
	Args:  cobra.ExactArgs(1),
	RunE:  runTargetsImport,
}

var targetsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List saved target sets",
	Args:  cobra.NoArgs,
	RunE:  runTargetsList,
}

var targetsShowCmd = &cobra.Command{
	Use:   "show NAME",
	Short: "Show the targets of a saved set",
	Args:  cobra.ExactArgs(1),
	RunE:  runTargetsShow,
}

var targetsDeleteCmd = &cobra.Command{
	Use:   "delete NAME",
	Short: "Delete a saved target set",
	Args:  cobra.ExactArgs(1),
	RunE:  runTargetsDelete,
}

func init() {
	targetsImportCmd.Flags().StringVar(&importSetName, "set", "",
		"name of the set (required)")
	targetsImportCmd.MarkFlagRequired("set")

	targetsCmd.AddCommand(targetsImportCmd)
	targetsCmd.AddCommand(targetsListCmd)
	targetsCmd.AddCommand(targetsShowCmd)
	targetsCmd.AddCommand(targetsDeleteCmd)
}

func withSets(fn func(s *storage.TargetSetStorage) error) error {
	db, err := storage.Open(cfg.DBPath())
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()
	return fn(storage.NewTargetSetStorage(db))
}

func runTargetsImport(cmd *cobra.Command, args []string) error {
	list, err := targets.LoadFile(args[0])
	if err != nil {
		return err
	}

	set := &model.TargetSet{Name: importSetName, Source: args[0], Targets: list}
	return withSets(func(s *storage.TargetSetStorage) error {
		if err := s.SaveSet(set); err != nil {
			return err
		}
		fmt.Printf("Saved %d targets as %q\n", len(list), set.Name)
		return nil
	})
}

func runTargetsList(cmd *cobra.Command, args []string) error {
	return withSets(func(s *storage.TargetSetStorage) error {
		sets, err := s.ListSets()
		if err != nil {
			return err
		}
		if len(sets) == 0 {
			fmt.Println("No saved target sets")
			return nil
		}
		fmt.Printf("%-20s %-8s %-20s %s\n", "NAME", "TARGETS", "SAVED", "SOURCE")
		for _, set := range sets {
			fmt.Printf("%-20s %-8d %-20s %s\n", set.Name, set.Count,
				set.CreatedAt.Local().Format("2006-01-02 15:04:05"), set.Source)
		}
		return nil
	})
}

func runTargetsShow(cmd *cobra.Command, args []string) error {
	return withSets(func(s *storage.TargetSetStorage) error {
		set, err := s.LoadSet(args[0])
		if err != nil {
			return err
		}
		for _, t := range set.Targets {
			fmt.Printf("%-20s %s\n", t.Name, targets.Format(t))
		}
		return nil
	})
}

func runTargetsDelete(cmd *cobra.Command, args []string) error {
	return withSets(func(s *storage.TargetSetStorage) error {
		if err := s.DeleteSet(args[0]); err != nil {
			return err
		}
		fmt.Printf("Deleted %q\n", args[0])
		return nil
	})
}
