package cli

import (
	"sort"

	"github.com/spf13/cobra"

	"github.com/iudanet/storysync/internal/storage"
)

func newPrefCommand(a *App) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "pref",
		Short: "Manage user preferences kept by the backend",
	}

	prefs := func(cmd *cobra.Command) (storage.PreferenceStore, error) {
		svc, err := a.Service(cmd.Context())
		if err != nil {
			return nil, err
		}
		return storage.Preferences(svc.Backend())
	}

	getCmd := &cobra.Command{
		Use:   "get <name>",
		Short: "Print a preference value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := prefs(cmd)
			if err != nil {
				return err
			}
			value, err := p.GetPreference(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			a.io.Println(value)
			return nil
		},
	}

	setCmd := &cobra.Command{
		Use:   "set <name> <value>",
		Short: "Set a preference",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := prefs(cmd)
			if err != nil {
				return err
			}
			return p.SetPreference(cmd.Context(), args[0], args[1])
		},
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <name>",
		Short: "Unset a preference",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := prefs(cmd)
			if err != nil {
				return err
			}
			return p.DeletePreference(cmd.Context(), args[0])
		},
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List preferences",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := prefs(cmd)
			if err != nil {
				return err
			}
			all, err := p.ListPreferences(cmd.Context())
			if err != nil {
				return err
			}

			names := make([]string, 0, len(all))
			for name := range all {
				names = append(names, name)
			}
			sort.Strings(names)
			for _, name := range names {
				a.io.Printf("%s=%s\n", name, all[name])
			}
			return nil
		},
	}

	cmd.AddCommand(getCmd, setCmd, deleteCmd, listCmd)
	return cmd
}
