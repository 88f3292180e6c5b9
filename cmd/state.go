package cmd

import (
	"time"

	"github.com/spf13/cobra"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Print the guardian set, fees, upgrade targets and chain registrations",
	Args:  cobra.NoArgs,
	RunE:  runState,
}

func init() {
	rootCmd.AddCommand(stateCmd)

	stateCmd.Flags().String(
		"emitter",
		"",
		"Also print the next sequence of this emitter identity (hex)")
}

type registrationView struct {
	Chain        uint16 `json:"chain"`
	Emitter      string `json:"emitter"`
	RegisteredAt string `json:"registeredAt"`
}

type stateView struct {
	GuardianSet   guardianSetView    `json:"guardianSet"`
	MessageFee    string             `json:"messageFee"`
	FeeBalance    string             `json:"feeBalance"`
	Upgrades      map[string]string  `json:"upgrades,omitempty"`
	Registrations []registrationView `json:"registrations,omitempty"`
	NextSequence  *uint64            `json:"nextSequence,omitempty"`
}

func runState(cmd *cobra.Command, args []string) error {
	logger := configureLogging(cmd, args)
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	b, store, err := openBridge(cmd.Context(), logger, cfg)
	if err != nil {
		return err
	}
	defer store.Close()

	st, err := b.State(cmd.Context())
	if err != nil {
		return err
	}

	view := stateView{
		GuardianSet: newGuardianSetView(st.GuardianSet),
		MessageFee:  st.MessageFee.Dec(),
		FeeBalance:  st.FeeBalance.Dec(),
		Upgrades:    map[string]string{},
	}
	for module, target := range st.Upgrades {
		view.Upgrades[module] = target.String()
	}
	for _, r := range st.Registrations {
		view.Registrations = append(view.Registrations, registrationView{
			Chain:        uint16(r.Chain),
			Emitter:      r.Emitter.String(),
			RegisteredAt: r.RegisteredAt.UTC().Format(time.RFC3339),
		})
	}

	if emitterHex, _ := cmd.Flags().GetString("emitter"); emitterHex != "" {
		emitter, err := decodeHex(emitterHex)
		if err != nil {
			return err
		}
		next, err := b.NextSequence(cmd.Context(), emitter)
		if err != nil {
			return err
		}
		view.NextSequence = &next
	}
	return printJSON(cmd.OutOrStdout(), view)
}
