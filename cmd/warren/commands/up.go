package commands

import (
	"archive/tar"
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-connections/nat"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/dyluth/warren/internal/config"
	dockerpkg "github.com/dyluth/warren/internal/docker"
	"github.com/dyluth/warren/internal/git"
	"github.com/dyluth/warren/internal/instance"
	"github.com/dyluth/warren/internal/printer"
)

var (
	upInstanceName string
	upForce        bool
)

var upCmd = &cobra.Command{
	Use:   "up",
	Short: "Start a warren instance",
	Long: `Start a new warren instance in the current Git repository.

Creates and starts:
  • Isolated Docker network
  • Redis container (event bus, artifact store)
  • Orchestrator container (task-graph engine, dispatcher, agent supervisor)

The orchestrator reads warren.yml from the workspace mount and spawns one
kit container per agent replica declared there.

The instance name is auto-generated (default-N) unless specified with --name.
Workspace safety checks prevent multiple instances on the same directory unless --force is used.`,
	RunE: runUp,
}

func init() {
	upCmd.Flags().StringVar(&upInstanceName, "name", "", "Instance name (auto-generated if omitted)")
	upCmd.Flags().BoolVar(&upForce, "force", false, "Bypass workspace collision check")
	rootCmd.AddCommand(upCmd)
}

func runUp(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	checker := git.NewChecker()
	if err := checker.ValidateGitContext(); err != nil {
		return fmt.Errorf(`not a Git repository

warren requires initialization from within a Git repository.

Run these commands in order:
  1. git init
  2. warren init
  3. warren up

Error: %w`, err)
	}

	manifest, err := config.LoadManifest("warren.yml")
	if err != nil {
		return fmt.Errorf(`warren.yml not found or invalid

No fleet manifest found in the current directory.

Initialize your project first:
  warren init

Then retry: warren up

Error details: %w`, err)
	}

	if _, err := config.LoadCatalog("runtimes.json"); err != nil {
		return fmt.Errorf(`runtimes.json not found or invalid

Error details: %w`, err)
	}

	cli, err := dockerpkg.NewClient(ctx)
	if err != nil {
		return err
	}
	defer cli.Close()

	targetInstanceName := upInstanceName
	if targetInstanceName == "" {
		targetInstanceName, err = instance.GenerateDefaultName(ctx, cli)
		if err != nil {
			return fmt.Errorf("failed to generate instance name: %w", err)
		}
	}

	if err := instance.ValidateName(targetInstanceName); err != nil {
		return err
	}

	nameCollision, err := instance.CheckNameCollision(ctx, cli, targetInstanceName)
	if err != nil {
		return err
	}
	if nameCollision {
		return fmt.Errorf(`instance '%s' already exists

Found existing containers with this instance name.

Either:
  1. Stop the existing instance: warren down --name %s
  2. Choose a different name: warren up --name other-name`, targetInstanceName, targetInstanceName)
	}

	workspacePath, err := instance.GetCanonicalWorkspacePath()
	if err != nil {
		return fmt.Errorf("failed to get workspace path: %w", err)
	}

	if !upForce {
		collision, err := instance.CheckWorkspaceCollision(ctx, cli, workspacePath, targetInstanceName)
		if err != nil {
			return fmt.Errorf("failed to check workspace collision: %w", err)
		}
		if collision != nil {
			return fmt.Errorf(`workspace in use

Another instance '%s' is already running on this workspace:
  Workspace: %s

Either:
  1. Stop the other instance: warren down --name %s
  2. Use --force to bypass this check (not recommended)`, collision.InstanceName, collision.WorkspacePath, collision.InstanceName)
		}
	}

	runID := uuid.New().String()
	if err := createInstance(ctx, cli, manifest, targetInstanceName, runID, workspacePath); err != nil {
		printer.Warning("Resource creation failed. Rolling back...\n")
		if rollbackErr := rollbackInstance(ctx, cli, targetInstanceName); rollbackErr != nil {
			printer.Warning("rollback encountered errors: %v\n", rollbackErr)
		}
		return fmt.Errorf("failed to create instance: %w", err)
	}

	printUpSuccess(targetInstanceName, workspacePath)

	return nil
}

func createInstance(ctx context.Context, cli *client.Client, manifest *config.Manifest, instanceName, runID, workspacePath string) error {
	redisPort, err := instance.FindNextAvailablePort(ctx, cli)
	if err != nil {
		return fmt.Errorf("failed to allocate Redis port: %w", err)
	}
	printer.Step("Allocated Redis port: %d\n", redisPort)

	networkName := dockerpkg.NetworkName(instanceName)
	networkLabels := dockerpkg.BuildLabels(instanceName, runID, workspacePath, "")

	if _, err := cli.NetworkCreate(ctx, networkName, types.NetworkCreate{
		Driver: "bridge",
		Labels: networkLabels,
	}); err != nil {
		return fmt.Errorf("failed to create network '%s': %w", networkName, err)
	}
	printer.Step("Created network: %s\n", networkName)

	redisName := dockerpkg.RedisContainerName(instanceName)
	redisLabels := dockerpkg.BuildLabels(instanceName, runID, workspacePath, "redis")
	redisLabels[dockerpkg.LabelRedisPort] = fmt.Sprintf("%d", redisPort)

	redisResp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:  "redis:7-alpine",
		Labels: redisLabels,
		ExposedPorts: nat.PortSet{
			"6379/tcp": struct{}{},
		},
	}, &container.HostConfig{
		NetworkMode: container.NetworkMode(networkName),
		PortBindings: nat.PortMap{
			"6379/tcp": []nat.PortBinding{
				{HostIP: "127.0.0.1", HostPort: fmt.Sprintf("%d", redisPort)},
			},
		},
	}, nil, nil, redisName)
	if err != nil {
		return fmt.Errorf("failed to create Redis container: %w", err)
	}
	if err := cli.ContainerStart(ctx, redisResp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start Redis container: %w", err)
	}
	printer.Step("Started Redis container: %s (port %d)\n", redisName, redisPort)

	orchestratorImage := "warren-orchestrator:latest"
	printer.Step("Building orchestrator image...\n")
	if err := buildOrchestratorImage(ctx, cli, orchestratorImage); err != nil {
		return fmt.Errorf("failed to build orchestrator image: %w", err)
	}
	printer.Step("Built orchestrator image: %s\n", orchestratorImage)

	orchestratorName := dockerpkg.OrchestratorContainerName(instanceName)
	orchestratorLabels := dockerpkg.BuildLabels(instanceName, runID, workspacePath, "orchestrator")
	redisURL := fmt.Sprintf("redis://%s:6379", redisName)

	orchestratorResp, err := cli.ContainerCreate(ctx, &container.Config{
		Image:  orchestratorImage,
		Labels: orchestratorLabels,
		Env: []string{
			fmt.Sprintf("WARREN_INSTANCE_NAME=%s", instanceName),
			fmt.Sprintf("REDIS_URL=%s", redisURL),
		},
	}, &container.HostConfig{
		NetworkMode: container.NetworkMode(networkName),
		Binds: []string{
			fmt.Sprintf("%s:/workspace:ro", workspacePath),
		},
	}, nil, nil, orchestratorName)
	if err != nil {
		return fmt.Errorf("failed to create orchestrator container: %w", err)
	}
	if err := cli.ContainerStart(ctx, orchestratorResp.ID, container.StartOptions{}); err != nil {
		return fmt.Errorf("failed to start orchestrator container: %w", err)
	}
	printer.Step("Started orchestrator container: %s\n", orchestratorName)

	return nil
}

func rollbackInstance(ctx context.Context, cli *client.Client, instanceName string) error {
	timeout := 10

	containers, err := cli.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", fmt.Sprintf("%s=%s", dockerpkg.LabelInstanceName, instanceName)),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to list containers: %w", err)
	}

	for _, c := range containers {
		_ = cli.ContainerStop(ctx, c.ID, container.StopOptions{Timeout: &timeout})
		if err := cli.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil {
			printer.Warning("failed to remove %s: %v\n", c.Names[0], err)
		}
	}

	networks, err := cli.NetworkList(ctx, types.NetworkListOptions{
		Filters: filters.NewArgs(
			filters.Arg("label", fmt.Sprintf("%s=%s", dockerpkg.LabelInstanceName, instanceName)),
		),
	})
	if err != nil {
		return fmt.Errorf("failed to list networks: %w", err)
	}
	for _, net := range networks {
		if err := cli.NetworkRemove(ctx, net.ID); err != nil {
			printer.Warning("failed to remove network %s: %v\n", net.Name, err)
		}
	}

	return nil
}

func printUpSuccess(instanceName, workspacePath string) {
	printer.Success("Instance '%s' started successfully\n\n", instanceName)
	fmt.Printf("Containers:\n")
	fmt.Printf("  • %s (running)\n", dockerpkg.RedisContainerName(instanceName))
	fmt.Printf("  • %s (running)\n", dockerpkg.OrchestratorContainerName(instanceName))
	fmt.Printf("\n")
	fmt.Printf("Network:\n")
	fmt.Printf("  • %s\n", dockerpkg.NetworkName(instanceName))
	fmt.Printf("\n")
	fmt.Printf("Workspace: %s\n", workspacePath)
	fmt.Printf("\n")
	fmt.Printf("Next steps:\n")
	fmt.Printf("  1. Run 'warren submit graph.json' to submit a task graph\n")
	fmt.Printf("  2. Run 'warren watch' to follow live activity\n")
	fmt.Printf("  3. Run 'warren down --name %s' when finished\n", instanceName)
}

func buildOrchestratorImage(ctx context.Context, cli *client.Client, imageName string) error {
	projectRoot, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get current directory: %w", err)
	}

	buildContext, err := createBuildContext(projectRoot)
	if err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}

	buildOptions := types.ImageBuildOptions{
		Tags:       []string{imageName},
		Dockerfile: "Dockerfile.orchestrator",
		Remove:     true,
	}

	resp, err := cli.ImageBuild(ctx, buildContext, buildOptions)
	if err != nil {
		return fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return fmt.Errorf("error reading build output: %w", err)
	}

	return nil
}

func createBuildContext(projectRoot string) (io.Reader, error) {
	var buf bytes.Buffer
	tw := tar.NewWriter(&buf)
	defer tw.Close()

	includes := []string{
		"go.mod",
		"go.sum",
		"Dockerfile.orchestrator",
		"cmd/",
		"pkg/",
		"internal/",
	}

	for _, include := range includes {
		fullPath := filepath.Join(projectRoot, include)

		info, err := os.Stat(fullPath)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, err
		}

		if info.IsDir() {
			err = filepath.Walk(fullPath, func(path string, info os.FileInfo, err error) error {
				if err != nil {
					return err
				}
				if filepath.Base(path)[0] == '.' {
					if info.IsDir() {
						return filepath.SkipDir
					}
					return nil
				}

				relPath, err := filepath.Rel(projectRoot, path)
				if err != nil {
					return err
				}

				header, err := tar.FileInfoHeader(info, "")
				if err != nil {
					return err
				}
				header.Name = relPath

				if err := tw.WriteHeader(header); err != nil {
					return err
				}
				if !info.IsDir() {
					file, err := os.Open(path)
					if err != nil {
						return err
					}
					defer file.Close()
					if _, err := io.Copy(tw, file); err != nil {
						return err
					}
				}
				return nil
			})
			if err != nil {
				return nil, err
			}
		} else {
			file, err := os.Open(fullPath)
			if err != nil {
				return nil, err
			}
			defer file.Close()

			relPath, err := filepath.Rel(projectRoot, fullPath)
			if err != nil {
				return nil, err
			}

			header, err := tar.FileInfoHeader(info, "")
			if err != nil {
				return nil, err
			}
			header.Name = relPath

			if err := tw.WriteHeader(header); err != nil {
				return nil, err
			}
			if _, err := io.Copy(tw, file); err != nil {
				return nil, err
			}
		}
	}

	return &buf, nil
}
