package collab

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/moby/moby/api/types/container"
	"github.com/moby/moby/api/types/mount"
	"github.com/moby/moby/client"

	"github.com/ostraka/arena/internal/arena"
)

// DockerTeam runs a container image once per round. The prompt is mounted
// read-only at /prompt.md and the team writes its answer to
// /out/submission.md before exiting. Cancellation of ctx (the submission
// timeout) kills the container.
type DockerTeam struct {
	Image   string
	Command []string
	Env     map[string]string
}

func (d *DockerTeam) Submit(ctx context.Context, prompt string) (*arena.Submission, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}
	defer cli.Close()

	workDir, err := os.MkdirTemp("", "arena-round-")
	if err != nil {
		return nil, fmt.Errorf("creating round dir: %w", err)
	}
	defer os.RemoveAll(workDir)

	promptPath := filepath.Join(workDir, "prompt.md")
	if err := os.WriteFile(promptPath, []byte(prompt), 0o644); err != nil {
		return nil, fmt.Errorf("writing prompt: %w", err)
	}
	outDir := filepath.Join(workDir, "out")
	if err := os.MkdirAll(outDir, 0o777); err != nil {
		return nil, fmt.Errorf("creating output dir: %w", err)
	}

	envSlice := make([]string, 0, len(d.Env))
	for k, v := range d.Env {
		envSlice = append(envSlice, k+"="+v)
	}

	hostCfg := &container.HostConfig{
		Mounts: []mount.Mount{
			{Type: mount.TypeBind, Source: promptPath, Target: "/prompt.md", ReadOnly: true},
			{Type: mount.TypeBind, Source: outDir, Target: "/out"},
		},
	}
	containerCfg := &container.Config{
		Image:  d.Image,
		Cmd:    d.Command,
		Env:    append(envSlice, "PROMPT_FILE=/prompt.md", "SUBMISSION_FILE=/out/submission.md"),
		Labels: map[string]string{"arena": "true"},
	}

	createResp, err := cli.ContainerCreate(ctx, client.ContainerCreateOptions{
		Config:     containerCfg,
		HostConfig: hostCfg,
	})
	if err != nil {
		return nil, fmt.Errorf("creating container: %w", err)
	}
	containerID := createResp.ID
	defer func() {
		cli.ContainerRemove(context.Background(), containerID, client.ContainerRemoveOptions{Force: true})
	}()

	if _, err := cli.ContainerStart(ctx, containerID, client.ContainerStartOptions{}); err != nil {
		return nil, fmt.Errorf("starting container: %w", err)
	}

	waitResult := cli.ContainerWait(ctx, containerID, client.ContainerWaitOptions{
		Condition: container.WaitConditionNotRunning,
	})
wait:
	for {
		select {
		case err := <-waitResult.Error:
			if err != nil {
				killCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				cli.ContainerKill(killCtx, containerID, client.ContainerKillOptions{Signal: "SIGKILL"})
				return nil, fmt.Errorf("waiting for container: %w", err)
			}
			// nil error means no error on this channel; wait for result
		case status := <-waitResult.Result:
			if status.StatusCode != 0 {
				return nil, fmt.Errorf("container exited with status %d", status.StatusCode)
			}
			break wait
		}
	}

	content, err := os.ReadFile(filepath.Join(outDir, "submission.md"))
	if err != nil {
		return nil, fmt.Errorf("reading submission: %w", err)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("empty submission content")
	}
	return &arena.Submission{Content: string(content), Format: "md"}, nil
}
