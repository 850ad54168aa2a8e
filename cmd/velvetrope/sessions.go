package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List stored game sessions",
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, st, err := buildEngine()
		if err != nil {
			return err
		}
		defer st.Close()

		sessions, err := eng.ListSessions()
		if err != nil {
			return err
		}
		if len(sessions) == 0 {
			fmt.Println("no sessions yet")
			return nil
		}

		head := lipgloss.NewStyle().Bold(true)
		fmt.Println(head.Render(fmt.Sprintf("%-36s  %-6s  %5s  %5s  %s",
			"SESSION", "STATE", "SCORE", "TURNS", "CREATED")))
		for _, session := range sessions {
			fmt.Printf("%-36s  %-6s  %5d  %5d  %s\n",
				session.SessionID, session.State, session.Score,
				session.MessageCount, session.CreatedAt.Format("2006-01-02 15:04"))
		}
		return nil
	},
}
