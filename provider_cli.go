package provbatch

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"
)

const (
	// idPlaceholder is replaced with the resource ID in argument templates.
	idPlaceholder = "{id}"

	// defaultProvisionTimeout bounds resource-mutating calls.
	defaultProvisionTimeout = 2 * time.Minute
	// defaultMetadataTimeout bounds quick metadata-class calls.
	defaultMetadataTimeout = 30 * time.Second
)

// CLIProvider shells out to an external provisioning command, one invocation
// per operation, capturing combined stdout/stderr alongside the exit status.
// Argument lists are templates: every occurrence of "{id}" is replaced with
// the task's resource ID before the call.
type CLIProvider struct {
	// Command is the binary to invoke.
	Command string

	// Argument templates per operation.
	CreateArgs []string
	EnableArgs []string
	IssueArgs  []string
	DeleteArgs []string

	// ProvisionTimeout bounds create, enable, and delete calls.
	// Zero uses a default of 2 minutes.
	ProvisionTimeout time.Duration

	// MetadataTimeout bounds credential issuance, which is a quick
	// metadata-class call. Zero uses a default of 30 seconds.
	MetadataTimeout time.Duration
}

// Validate checks that the CLIProvider is ready for use.
func (p *CLIProvider) Validate() error {
	if p.Command == "" {
		return errors.Join(ErrInvalidConfig, errors.New("CLIProvider.Command is empty"))
	}
	if p.ProvisionTimeout < 0 || p.MetadataTimeout < 0 {
		return errors.Join(ErrInvalidConfig, errors.New("CLIProvider timeouts cannot be negative"))
	}
	return nil
}

// CreateResource invokes the create template for the given ID.
func (p *CLIProvider) CreateResource(ctx context.Context, id string) (string, error) {
	return p.run(ctx, p.CreateArgs, id, p.provisionTimeout())
}

// EnableCapability invokes the enable template for the given ID.
func (p *CLIProvider) EnableCapability(ctx context.Context, id string) (string, error) {
	return p.run(ctx, p.EnableArgs, id, p.provisionTimeout())
}

// IssueCredential invokes the issue template for the given ID.
func (p *CLIProvider) IssueCredential(ctx context.Context, id string) (string, error) {
	return p.run(ctx, p.IssueArgs, id, p.metadataTimeout())
}

// DeleteResource invokes the delete template for the given ID.
func (p *CLIProvider) DeleteResource(ctx context.Context, id string) (string, error) {
	return p.run(ctx, p.DeleteArgs, id, p.provisionTimeout())
}

// run executes one bounded CLI invocation with the template expanded.
func (p *CLIProvider) run(ctx context.Context, args []string, id string, timeout time.Duration) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	expanded := make([]string, len(args))
	for i, arg := range args {
		expanded[i] = strings.ReplaceAll(arg, idPlaceholder, id)
	}

	cmd := exec.CommandContext(ctx, p.Command, expanded...)
	output, err := cmd.CombinedOutput()
	return string(output), err
}

func (p *CLIProvider) provisionTimeout() time.Duration {
	if p.ProvisionTimeout > 0 {
		return p.ProvisionTimeout
	}
	return defaultProvisionTimeout
}

func (p *CLIProvider) metadataTimeout() time.Duration {
	if p.MetadataTimeout > 0 {
		return p.MetadataTimeout
	}
	return defaultMetadataTimeout
}
