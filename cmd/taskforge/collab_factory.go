package main

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/mbenham/taskforge/internal/collab"
	"github.com/mbenham/taskforge/internal/config"
)

// createCollaborators builds the Claude-backed collaborator set from
// the loaded configuration.
func createCollaborators(cfg *config.Config) (*collab.Set, error) {
	client, err := collab.NewClient(collab.ClientConfig{
		Model:         anthropic.Model(cfg.Anthropic.Model),
		APIKey:        cfg.Anthropic.APIKey,
		UseAWSBedrock: cfg.Anthropic.UseAWSBedrock,
		AWSRegion:     cfg.Anthropic.AWSRegion,
		AWSProfile:    cfg.Anthropic.AWSProfile,
	})
	if err != nil {
		return nil, fmt.Errorf("create API client: %w", err)
	}
	return collab.NewClaudeSet(client), nil
}
