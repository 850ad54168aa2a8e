package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"velvetrope/internal/engine"
	"velvetrope/internal/game"
)

var playSessionID string

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FFC107"))
	doormanStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#8BC34A"))
	promptStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#2196F3"))
	statusStyle  = lipgloss.NewStyle().Faint(true)
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#e53935"))
	wonStyle     = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#8BC34A"))
	lostStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#e53935"))
)

var playCmd = &cobra.Command{
	Use:   "play",
	Short: "Play a game in the terminal",
	Long: `Starts (or resumes, with --session) a game against Viktor directly on the
local engine, without going through the HTTP API. Type /status for the score,
/quit to leave; the session persists and can be resumed later.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		eng, st, err := buildEngine()
		if err != nil {
			return err
		}
		defer st.Close()

		ctx := cmd.Context()

		var opening *engine.StartResult
		if playSessionID != "" {
			opening, err = eng.Resume(ctx, playSessionID)
		} else {
			opening, err = eng.Start(ctx)
		}
		if err != nil {
			return err
		}

		fmt.Println(headerStyle.Render("The Golden Palm — velvet rope"))
		fmt.Println(statusStyle.Render("session " + opening.SessionID))
		// The resumed transcript already ends with the last doorman line.
		for _, message := range opening.History {
			printTranscriptLine(message)
		}
		if len(opening.History) == 0 && opening.DoormanMessage != "" {
			fmt.Println(doormanStyle.Render("Viktor: " + opening.DoormanMessage))
		}
		printStatus(opening.Score, nil, opening.State)

		if opening.State.Terminal() {
			printOutcome(opening.State)
			return nil
		}

		scanner := bufio.NewScanner(os.Stdin)
		for {
			fmt.Print(promptStyle.Render("you> "))
			if !scanner.Scan() {
				return scanner.Err()
			}
			line := strings.TrimSpace(scanner.Text())

			switch line {
			case "":
				continue
			case "/quit", "/exit":
				fmt.Println(statusStyle.Render("resume later with: velvetrope play --session " + opening.SessionID))
				return nil
			case "/status":
				status, err := eng.Status(opening.SessionID)
				if err != nil {
					fmt.Println(errorStyle.Render(err.Error()))
					continue
				}
				printStatus(status.Score, nil, status.State)
				continue
			}

			result, err := eng.Submit(ctx, opening.SessionID, line)
			if err != nil {
				var ge *game.Error
				if errors.As(err, &ge) {
					fmt.Println(errorStyle.Render("[" + ge.Code + "] " + ge.Message))
					continue
				}
				return err
			}

			fmt.Println(doormanStyle.Render("Viktor: " + result.DoormanMessage))
			delta := result.ScoreDelta
			printStatus(result.Score, &delta, result.State)

			if result.State.Terminal() {
				printOutcome(result.State)
				return nil
			}
		}
	},
}

func init() {
	playCmd.Flags().StringVar(&playSessionID, "session", "", "resume an existing session id")
}

func printTranscriptLine(message game.Message) {
	if message.Role == game.RoleDoorman {
		fmt.Println(doormanStyle.Render("Viktor: " + message.Content))
	} else {
		fmt.Println("you: " + message.Content)
	}
}

func printStatus(score int, delta *int, state game.State) {
	deltaText := ""
	if delta != nil {
		deltaText = fmt.Sprintf(" (%+d)", *delta)
	}
	fmt.Println(statusStyle.Render(fmt.Sprintf("score %d%s | %s %s",
		score, deltaText, state, scoreMeter(score, cfg.Game.LoseThreshold, cfg.Game.WinThreshold))))
}

// scoreMeter renders score position between the thresholds as a bar.
func scoreMeter(score, lose, win int) string {
	const width = 24
	if win <= lose {
		return ""
	}
	ratio := float64(score-lose) / float64(win-lose)
	if ratio < 0 {
		ratio = 0
	}
	if ratio > 1 {
		ratio = 1
	}
	filled := int(ratio*width + 0.5)
	return "[" + strings.Repeat("#", filled) + strings.Repeat("-", width-filled) + "]"
}

func printOutcome(state game.State) {
	if state == game.StateWon {
		fmt.Println(wonStyle.Render("The rope opens. You're in."))
	} else {
		fmt.Println(lostStyle.Render("Not tonight. The conversation is over."))
	}
}
