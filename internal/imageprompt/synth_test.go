package imageprompt

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"learningodyssey/internal/adventure"
	"learningodyssey/internal/llmgateway"
)

type stubGateway struct {
	sceneDescription string
	synthesized      string
	calls            []llmgateway.UseCase
}

func (g *stubGateway) Complete(ctx context.Context, req llmgateway.CompletionRequest) (string, error) {
	g.calls = append(g.calls, req.UseCase)
	if req.UseCase == llmgateway.UseCaseImageSceneDescription {
		return g.sceneDescription, nil
	}
	return g.synthesized, nil
}

func TestGenerateAndSubmitRunsBothStepsThenCallsEndpoint(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"url":"https://images.example/abc.png"}]}`))
	}))
	defer srv.Close()

	gw := &stubGateway{
		sceneDescription: "a lantern-lit workshop full of brass gears",
		synthesized:      "A colorful storybook illustration of a lantern-lit workshop, accompanied by a clockwork fox, wielding a brass compass.",
	}
	client := NewClient("test-key", srv.URL, nil, nil)
	synth := NewSynthesizer(gw, client)

	url, err := synth.GenerateAndSubmit(context.Background(), "chapter content here", SceneInputs{
		ProtagonistDescription: "a tinker in a patched coat",
		Agency:                 adventure.Agency{Category: adventure.AgencyArtifact, Name: "brass compass"},
		SensoryVisuals:         []string{"warm amber light"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if url != "https://images.example/abc.png" {
		t.Fatalf("unexpected url: %q", url)
	}
	if len(gw.calls) != 2 || gw.calls[0] != llmgateway.UseCaseImageSceneDescription || gw.calls[1] != llmgateway.UseCaseImagePromptSynthesis {
		t.Fatalf("expected scene description then synthesis calls, got %+v", gw.calls)
	}
}

func TestBuildMergeInputUsesEvolvedVisualOverBaseProtagonist(t *testing.T) {
	in := SceneInputs{
		SceneDescription:       "a clockwork garden",
		ProtagonistDescription: "plain traveler",
		Agency:                 adventure.Agency{Category: adventure.AgencyProfession, Name: "Mira"},
		CharactersInScene:      map[string]string{"Mira": "a scarred adventurer in goggles"},
	}
	merged := buildMergeInput(in)
	if !strings.Contains(merged, "a scarred adventurer in goggles") {
		t.Fatalf("expected evolved visual to override base description, got: %s", merged)
	}
	if strings.Contains(merged, "plain traveler") {
		t.Fatalf("expected base description to be overridden, got: %s", merged)
	}
}

func TestBuildMergeInputKeepsBaseProtagonistForCompanionAgency(t *testing.T) {
	in := SceneInputs{
		SceneDescription:       "a clockwork garden",
		ProtagonistDescription: "plain traveler",
		Agency:                 adventure.Agency{Category: adventure.AgencyCompanion, Name: "Ember"},
		CharactersInScene:      map[string]string{"Ember": "a russet fox with a torn ear"},
	}
	merged := buildMergeInput(in)
	if !strings.Contains(merged, "plain traveler") {
		t.Fatalf("expected base protagonist description to survive when the agency is a companion, got: %s", merged)
	}
	if !strings.Contains(merged, "a russet fox with a torn ear") {
		t.Fatalf("expected the companion's own entry to still be listed, got: %s", merged)
	}
}

func TestClientGenerateImageRejectsEmptyPayload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[]}`))
	}))
	defer srv.Close()

	client := NewClient("key", srv.URL, nil, nil)
	_, err := client.GenerateImage(context.Background(), "a prompt")
	if err == nil {
		t.Fatalf("expected error for empty image payload")
	}
}
