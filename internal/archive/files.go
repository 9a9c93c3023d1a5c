package archive

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jxmullins/kickoff/internal/roster"
)

// File is a document written into a run directory.
type File struct {
	Name        string
	Content     string
	Description string
	CreatedBy   string
	Path        string // Set after saving
}

// Save writes the file into dir.
func (f *File) Save(dir string) error {
	if err := os.MkdirAll(dir, 0750); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}

	// Sanitize filename to prevent path traversal
	safeName := filepath.Base(filepath.Clean(f.Name))
	if safeName == "." || safeName == ".." || safeName == "" || safeName == string(filepath.Separator) {
		return fmt.Errorf("invalid file name: %s", f.Name)
	}

	path := filepath.Join(dir, safeName)

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return fmt.Errorf("resolving directory path: %w", err)
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return fmt.Errorf("resolving file path: %w", err)
	}
	if !strings.HasPrefix(absPath, absDir+string(filepath.Separator)) {
		return fmt.Errorf("path traversal detected: %s is outside %s", f.Name, dir)
	}

	if err := os.WriteFile(path, []byte(f.Content), 0640); err != nil {
		return fmt.Errorf("writing file: %w", err)
	}

	f.Path = path
	return nil
}

func writeFiles(dir string, rec Record, delivs []Deliverable) error {
	r := rec.Roster
	if r == nil {
		r = roster.Default()
	}

	var files []File
	for _, d := range delivs {
		if d.Status != "completed" {
			continue
		}
		by := d.AgentID
		if a, ok := r.Agent(d.AgentID); ok {
			by = a.JobFunction
		}
		files = append(files, File{
			Name:        fmt.Sprintf("%d-%s.md", d.Phase, d.ID),
			Content:     d.Content,
			Description: d.Title,
			CreatedBy:   by,
		})
	}

	if rec.State.Insights != nil {
		data, err := json.MarshalIndent(rec.State.Insights, "", "  ")
		if err != nil {
			return fmt.Errorf("encoding insights: %w", err)
		}
		files = append(files, File{
			Name:        "insights.json",
			Content:     string(data) + "\n",
			Description: "Project insights",
			CreatedBy:   "Engagement Analyst",
		})
	}

	for i := range files {
		if err := files[i].Save(dir); err != nil {
			return fmt.Errorf("saving %s: %w", files[i].Name, err)
		}
	}

	manifest := Manifest(rec, files)
	if err := manifest.Save(dir); err != nil {
		return fmt.Errorf("saving manifest: %w", err)
	}
	return nil
}

// Manifest lists a run's saved files.
func Manifest(rec Record, files []File) File {
	var b strings.Builder
	b.WriteString("# Kickoff Manifest\n\n")
	fmt.Fprintf(&b, "**Run:** %s\n", rec.RunID)
	fmt.Fprintf(&b, "**State:** %s\n", rec.State.RunState)
	if !rec.StartedAt.IsZero() {
		fmt.Fprintf(&b, "**Started:** %s\n", rec.StartedAt.Format(time.RFC3339))
		fmt.Fprintf(&b, "**Duration:** %s\n", rec.FinishedAt.Sub(rec.StartedAt).Round(time.Second))
	}
	fmt.Fprintf(&b, "**Deliverables:** %d of %d completed\n", rec.State.CompletedCount(), len(rec.State.Deliverables))
	if rec.State.Error != "" {
		fmt.Fprintf(&b, "**Last error:** %s\n", rec.State.Error)
	}
	b.WriteString("\n## Files\n\n")

	for _, f := range files {
		fmt.Fprintf(&b, "### %s\n", f.Name)
		fmt.Fprintf(&b, "- **Description:** %s\n", f.Description)
		fmt.Fprintf(&b, "- **Created By:** %s\n", f.CreatedBy)
		b.WriteString("\n")
	}

	return File{Name: "MANIFEST.md", Content: b.String(), Description: "Run manifest", CreatedBy: "system"}
}
