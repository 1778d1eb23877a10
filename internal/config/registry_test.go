package config_test

import (
	"errors"
	"testing"

	"github.com/skribent/skribent/internal/config"
	"github.com/skribent/skribent/pkg/provider/asr"
	asrmock "github.com/skribent/skribent/pkg/provider/asr/mock"
	"github.com/skribent/skribent/pkg/provider/llm"
	llmmock "github.com/skribent/skribent/pkg/provider/llm/mock"
)

func TestRegistryCreate(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	reg.RegisterASR("whisperx", func(e config.ProviderEntry) (asr.Provider, error) {
		return &asrmock.Provider{ProviderID: "whisperx:" + e.BaseURL}, nil
	})
	reg.RegisterLLM("ollama", func(e config.ProviderEntry) (llm.Provider, error) {
		return &llmmock.Provider{ProviderName: "ollama:" + e.Model}, nil
	})

	a, err := reg.CreateASR(config.ProviderEntry{Name: "whisperx", BaseURL: "http://localhost:8000"})
	if err != nil {
		t.Fatalf("CreateASR: %v", err)
	}
	if a.ID() != "whisperx:http://localhost:8000" {
		t.Errorf("ASR ID = %q, factory did not see the entry", a.ID())
	}

	l, err := reg.CreateLLM(config.ProviderEntry{Name: "ollama", Model: "llama3.1:70b"})
	if err != nil {
		t.Fatalf("CreateLLM: %v", err)
	}
	if l.Name() != "ollama:llama3.1:70b" {
		t.Errorf("LLM name = %q, factory did not see the entry", l.Name())
	}
}

func TestRegistryUnknownName(t *testing.T) {
	t.Parallel()

	reg := config.NewRegistry()
	if _, err := reg.CreateASR(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateASR err = %v, want ErrProviderNotRegistered", err)
	}
	if _, err := reg.CreateLLM(config.ProviderEntry{Name: "nope"}); !errors.Is(err, config.ErrProviderNotRegistered) {
		t.Errorf("CreateLLM err = %v, want ErrProviderNotRegistered", err)
	}
}
