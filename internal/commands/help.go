package commands

import (
	"github.com/spf13/cobra"
)

var helpCmd = &cobra.Command{
	Use:   "help",
	Short: "Show an overview of dtr commands",
	Run: func(cmd *cobra.Command, args []string) {
		printf(cmd, "%s", overview)
	},
}

const overview = `
██████╗ ████████╗██████╗
██╔══██╗╚══██╔══╝██╔══██╗
██║  ██║   ██║   ██████╔╝
██║  ██║   ██║   ██╔══██╗
██████╔╝   ██║   ██║  ██║
╚═════╝    ╚═╝   ╚═╝  ╚═╝

dtr - offline-first daily time record

SESSIONS:

  in                      Time in (opens the timer)
    --no-ui               Plain output
  pause / resume          Pause or resume the session in progress
  out                     Time out
    --notes               Notes for the session
    --photo               Photo proof of work (png, jpeg, webp)
  status                  Rendered hours, goal and the live session
    --json                JSON output
  timer                   Interactive timer

    Timer keys:
      p             Pause/resume
      o             Time out (prompts for notes)
      q             Quit, session keeps running

HISTORY:

  ls                      Browse sessions
    --month YYYY-MM       One month only
    --all                 No limit
    --no-ui               Plain table
  archive <id>            Move a session to the archive
  archived                List archived sessions
  recover <id>            Restore an archived session
  purge <id>              Delete an archived session for good

DATA:

  goal [hours]            Show or set required hours
  report <file>           csv, xlsx or pdf of completed sessions
  export <file>           Raw SQLite image
  reset --yes             Delete all local data

SHARED BACKEND:

  sync                    Push sessions, pull approvals
  daemon                  Autosave and background sync
  class create|list|join|students|logs|approve
  serve                   Supervisor HTTP API

`
