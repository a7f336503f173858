package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/warren/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize creates the warren project structure: a fleet manifest
// (warren.yml), a runtime catalog (runtimes.json), and one example agent
// role's container build under agents/example-agent/.
// If force is true, it will remove existing warren.yml, runtimes.json,
// and agents/ first.
func Initialize(force bool) error {
	if force {
		if err := handleForce(); err != nil {
			return err
		}
	}

	files, err := getTemplateFiles()
	if err != nil {
		return err
	}

	if err := createDirectories(); err != nil {
		return err
	}

	if err := writeFiles(files); err != nil {
		return err
	}

	if err := validateCreatedFiles(); err != nil {
		return err
	}

	return nil
}

// handleForce removes existing files if --force was specified
func handleForce() error {
	for _, name := range []string{"warren.yml", "runtimes.json"} {
		if _, err := os.Stat(name); err == nil {
			fmt.Printf("⚠️  Removing existing %s...\n", name)
			if err := os.Remove(name); err != nil {
				return fmt.Errorf("failed to remove %s: %w", name, err)
			}
		}
	}

	if info, err := os.Stat("agents"); err == nil && info.IsDir() {
		fmt.Println("⚠️  Removing existing agents/ directory...")
		if err := os.RemoveAll("agents"); err != nil {
			return fmt.Errorf("failed to remove agents/ directory: %w", err)
		}
	}

	return nil
}

// getTemplateFiles reads and processes all template files
func getTemplateFiles() ([]FileInfo, error) {
	files := []FileInfo{}

	manifest, err := templatesFS.ReadFile("templates/warren.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read warren.yml template: %w", err)
	}
	files = append(files, FileInfo{Path: "warren.yml", Content: manifest, Permissions: 0644})

	catalog, err := templatesFS.ReadFile("templates/runtimes.json.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read runtimes.json template: %w", err)
	}
	files = append(files, FileInfo{Path: "runtimes.json", Content: catalog, Permissions: 0644})

	dockerfile, err := templatesFS.ReadFile("templates/Dockerfile.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read Dockerfile template: %w", err)
	}
	files = append(files, FileInfo{
		Path:        filepath.Join("agents", "example-agent", "Dockerfile"),
		Content:     dockerfile,
		Permissions: 0644,
	})

	runSh, err := templatesFS.ReadFile("templates/run.sh.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read run.sh template: %w", err)
	}
	files = append(files, FileInfo{
		Path:        filepath.Join("agents", "example-agent", "run.sh"),
		Content:     runSh,
		Permissions: 0755,
	})

	readme, err := templatesFS.ReadFile("templates/README.md.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read README.md template: %w", err)
	}
	files = append(files, FileInfo{
		Path:        filepath.Join("agents", "example-agent", "README.md"),
		Content:     readme,
		Permissions: 0644,
	})

	return files, nil
}

// createDirectories creates the necessary directory structure
func createDirectories() error {
	dirs := []string{
		"agents",
		filepath.Join("agents", "example-agent"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	return nil
}

// writeFiles writes all template files to disk
func writeFiles(files []FileInfo) error {
	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}

	return nil
}

// validateCreatedFiles validates that created files parse as their
// declared format and, more importantly, that warren.yml's agents
// actually reference runtimes defined in runtimes.json: a scaffold whose
// two generated files disagree would fail confusingly on `warren up`
// rather than at `warren init` time.
func validateCreatedFiles() error {
	manifest, err := config.LoadManifest("warren.yml")
	if err != nil {
		return fmt.Errorf("created warren.yml does not load as a valid manifest: %w", err)
	}

	catalog, err := config.LoadCatalog("runtimes.json")
	if err != nil {
		return fmt.Errorf("created runtimes.json does not load as a valid runtime catalog: %w", err)
	}

	for role, agent := range manifest.Agents {
		if _, ok := catalog.Lookup(agent.RuntimeID); !ok {
			return fmt.Errorf("agent %q references runtime_id %q, which is not present in runtimes.json", role, agent.RuntimeID)
		}
	}

	return nil
}

// PrintSuccess prints the success message with created files
func PrintSuccess() {
	fmt.Println("\n✅ Successfully initialized warren project!")
	fmt.Println("\nCreated:")
	fmt.Println("  ✓ warren.yml")
	fmt.Println("  ✓ runtimes.json")
	fmt.Println("  ✓ agents/example-agent/Dockerfile")
	fmt.Println("  ✓ agents/example-agent/run.sh")
	fmt.Println("  ✓ agents/example-agent/README.md")
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Customize warren.yml to add your own agents")
	fmt.Println("  2. Run 'warren up' to start the fleet")
	fmt.Println("  3. Run 'warren submit graph.json' to submit a task graph")
}
