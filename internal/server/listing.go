package server

import (
	"sort"
	"strings"

	"github.com/fatih/color"

	"github.com/smukkama/ytfetchd/internal/job"
	"github.com/smukkama/ytfetchd/internal/transport"
)

// Colour conventions for List replies, standing in for the source's
// cztext.colourise: finished is green, failed is red, running is blue,
// queued is yellow.
var (
	colorFinished = color.New(color.FgGreen)
	colorFailed   = color.New(color.FgRed)
	colorRunning  = color.New(color.FgBlue)
	colorQueued   = color.New(color.FgYellow)
)

// listText builds the reply text for a List request: one colour-tagged
// line per job the client owns, grouped by state, queued first through
// failed last.
func (s *Server) listText(client transport.ClientID) string {
	var b strings.Builder

	writeSection := func(title string, c *color.Color, jobs []job.Job) {
		if len(jobs) == 0 {
			return
		}
		b.WriteString(c.Sprintf("%s (%d):\n", title, len(jobs)))
		for _, j := range jobs {
			if j.State == job.Failed && j.Error != "" {
				b.WriteString(c.Sprintf("  %s (%s)\n", j.Item, j.Error))
			} else {
				b.WriteString(c.Sprintf("  %s\n", j.Item))
			}
		}
	}

	writeSection("queued", colorQueued, forClient(s.queued, client))
	writeSection("running", colorRunning, forClient(s.running, client))
	writeSection("finished", colorFinished, forClient(s.finished, client))
	writeSection("failed", colorFailed, forClient(s.failed, client))

	if b.Len() == 0 {
		return "no jobs"
	}
	return b.String()
}

func forClient(m map[job.Key]job.Job, client transport.ClientID) []job.Job {
	var out []job.Job
	for key, j := range m {
		if key.Client == client {
			out = append(out, j)
		}
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Item < out[k].Item })
	return out
}
