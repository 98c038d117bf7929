package provbatch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCLIProviderValidate(t *testing.T) {
	assert.ErrorIs(t, (&CLIProvider{}).Validate(), ErrInvalidConfig)
	assert.NoError(t, (&CLIProvider{Command: "echo"}).Validate())
}

func TestCLIProviderExpandsTemplate(t *testing.T) {
	provider := &CLIProvider{
		Command:    "echo",
		CreateArgs: []string{"created", "{id}"},
		DeleteArgs: []string{"deleted", "{id}"},
	}
	require.NoError(t, provider.Validate())

	output, err := provider.CreateResource(context.Background(), "res-1")
	require.NoError(t, err)
	assert.Equal(t, "created res-1\n", output)

	output, err = provider.DeleteResource(context.Background(), "res-1")
	require.NoError(t, err)
	assert.Equal(t, "deleted res-1\n", output)
}

func TestCLIProviderCapturesFailureOutput(t *testing.T) {
	provider := &CLIProvider{
		Command:    "sh",
		CreateArgs: []string{"-c", "echo 'ERROR: permission denied'; exit 1"},
	}
	require.NoError(t, provider.Validate())

	output, err := provider.CreateResource(context.Background(), "res-1")
	require.Error(t, err)
	assert.Contains(t, output, "permission denied")
	// The captured output classifies as fatal despite reaching us with a
	// plain exit error.
	assert.Equal(t, ClassFatal, DefaultClassifier().Classify(output, err))
}

func TestCLIProviderTimeout(t *testing.T) {
	provider := &CLIProvider{
		Command:          "sh",
		CreateArgs:       []string{"-c", "sleep 5"},
		ProvisionTimeout: 50 * time.Millisecond,
	}
	require.NoError(t, provider.Validate())

	start := time.Now()
	_, err := provider.CreateResource(context.Background(), "res-1")
	assert.Error(t, err)
	assert.Less(t, time.Since(start), 2*time.Second)
}
