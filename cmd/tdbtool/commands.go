package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/dreamware/tdbkit/internal/tdb"
)

func openCmd() *cobra.Command {
	var modeStr, tuneStr string
	cmd := &cobra.Command{
		Use:   "open <path>",
		Short: "Create or verify a database directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseOpenMode(modeStr)
			if err != nil {
				return err
			}
			tuning, err := resolveTuning(tuneStr)
			if err != nil {
				return err
			}
			t, err := tdb.Open(args[0], mode, tuning)
			if err != nil {
				return err
			}
			defer t.Close()
			rnum, err := t.Rnum()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "opened %s (%d records)\n", t.Path(), rnum)
			return nil
		},
	}
	cmd.Flags().StringVar(&modeStr, "mode", "writer,create", "comma-separated open mode: reader,writer,create,truncate,nolock,nonblock,sync")
	cmd.Flags().StringVar(&tuneStr, "tune", "", "tuning token string, e.g. #bnum=1000000#opts=ld")
	return cmd
}

func putCmd() *cobra.Command {
	var modeStr, colsStr, writeMode string
	cmd := &cobra.Command{
		Use:   "put <path> <pk>",
		Short: "Write a record, creating the database if needed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseOpenMode(modeStr)
			if err != nil {
				return err
			}
			cols, err := parseColumns(colsStr)
			if err != nil {
				return err
			}
			t, err := tdb.Open(args[0], mode, tdb.Tuning{})
			if err != nil {
				return err
			}
			defer t.Close()
			pk := []byte(args[1])
			switch writeMode {
			case "over", "":
				err = t.Put(pk, cols)
			case "keep":
				err = t.PutKeep(pk, cols)
			case "cat":
				err = t.PutCat(pk, cols)
			default:
				return fmt.Errorf("unknown write mode: %s", writeMode)
			}
			return err
		},
	}
	cmd.Flags().StringVar(&modeStr, "mode", "writer,create", "comma-separated open mode")
	cmd.Flags().StringVar(&colsStr, "cols", "", "name=value,name=value record columns")
	cmd.Flags().StringVar(&writeMode, "write", "over", "write mode: over, keep, or cat")
	return cmd
}

func getCmd() *cobra.Command {
	var modeStr string
	cmd := &cobra.Command{
		Use:   "get <path> <pk>",
		Short: "Print a record's columns",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseOpenMode(modeStr)
			if err != nil {
				return err
			}
			t, err := tdb.Open(args[0], mode, tdb.Tuning{})
			if err != nil {
				return err
			}
			defer t.Close()
			cols, err := t.Get([]byte(args[1]))
			if err != nil {
				return err
			}
			for _, e := range cols.Entries() {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", e.Name, string(e.Value))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&modeStr, "mode", "reader", "comma-separated open mode")
	return cmd
}

func outCmd() *cobra.Command {
	var modeStr string
	cmd := &cobra.Command{
		Use:   "out <path> <pk>",
		Short: "Remove a record",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseOpenMode(modeStr)
			if err != nil {
				return err
			}
			t, err := tdb.Open(args[0], mode, tdb.Tuning{})
			if err != nil {
				return err
			}
			defer t.Close()
			return t.Out([]byte(args[1]))
		},
	}
	cmd.Flags().StringVar(&modeStr, "mode", "writer", "comma-separated open mode")
	return cmd
}

func queryCmd() *cobra.Command {
	var modeStr string
	var filters []string
	var orderCol, orderType string
	var limit, skip int
	var showHint bool
	cmd := &cobra.Command{
		Use:   "query <path>",
		Short: "Search for matching primary keys",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			mode, err := parseOpenMode(modeStr)
			if err != nil {
				return err
			}
			t, err := tdb.Open(args[0], mode, tdb.Tuning{})
			if err != nil {
				return err
			}
			defer t.Close()

			q := tdb.NewQuery()
			for _, f := range filters {
				cond, err := tdb.ParseCondition(f)
				if err != nil {
					return err
				}
				q.AddConditionValue(cond)
			}
			if orderCol != "" {
				ot, err := tdb.ParseOrderType(orderType)
				if err != nil {
					return err
				}
				q.SetOrder(orderCol, ot)
			}
			if limit > 0 || skip > 0 {
				max := limit
				if max == 0 {
					max = -1 // --limit 0 stays unbounded when only --skip is given
				}
				q.SetLimit(max, skip)
			}

			pks, err := t.QrySearch(q)
			if err != nil {
				return err
			}
			for _, pk := range pks {
				fmt.Fprintln(cmd.OutOrStdout(), string(pk))
			}
			if showHint {
				fmt.Fprintln(cmd.ErrOrStderr(), q.Hint())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&modeStr, "mode", "reader", "comma-separated open mode")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, `"column OP expr" filter clause (repeatable), e.g. "age NUMGE 18"`)
	cmd.Flags().StringVar(&orderCol, "order-by", "", "column to sort results by")
	cmd.Flags().StringVar(&orderType, "order-type", "STRASC", "STRASC, STRDESC, NUMASC, or NUMDESC")
	cmd.Flags().IntVar(&limit, "limit", 0, "maximum results (0 = unbounded)")
	cmd.Flags().IntVar(&skip, "skip", 0, "matches to skip before collecting results")
	cmd.Flags().BoolVar(&showHint, "hint", false, "print the planner's hint trace to stderr")
	return cmd
}

func optimizeCmd() *cobra.Command {
	var tuneStr string
	cmd := &cobra.Command{
		Use:   "optimize <path>",
		Short: "Rebuild the hash store and every index tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tuning, err := resolveTuning(tuneStr)
			if err != nil {
				return err
			}
			t, err := tdb.Open(args[0], tdb.ModeWriter, tdb.Tuning{})
			if err != nil {
				return err
			}
			defer t.Close()
			return t.Optimize(tuning)
		},
	}
	cmd.Flags().StringVar(&tuneStr, "tune", "", "tuning token string to apply")
	return cmd
}

func vanishCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "vanish <path>",
		Short: "Remove every record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tdb.Open(args[0], tdb.ModeWriter, tdb.Tuning{})
			if err != nil {
				return err
			}
			defer t.Close()
			return t.Vanish()
		},
	}
	return cmd
}

func benchCmd() *cobra.Command {
	var count int
	cmd := &cobra.Command{
		Use:   "bench <path>",
		Short: "Write N generated records and report the count written",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			t, err := tdb.Open(args[0], tdb.ModeWriter|tdb.ModeCreate, tdb.Tuning{})
			if err != nil {
				return err
			}
			defer t.Close()
			keys := make([]int, count)
			for i := range keys {
				keys[i] = i
			}
			sort.Ints(keys) // bench writes in ascending key order, like a bulk-load run
			ctx := cmd.Context()
			written := 0
			for _, i := range keys {
				select {
				case <-ctx.Done():
					fmt.Fprintf(cmd.OutOrStdout(), "interrupted after %d records\n", written)
					return nil
				default:
				}
				uid, err := t.GenUID()
				if err != nil {
					return err
				}
				cols, err := parseColumns(fmt.Sprintf("seq=%d,uid=%d", i, uid))
				if err != nil {
					return err
				}
				if err := t.Put([]byte(fmt.Sprintf("bench:%08d", i)), cols); err != nil {
					return err
				}
				written++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %d records\n", written)
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 1000, "number of records to write")
	return cmd
}
