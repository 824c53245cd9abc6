package imageprompt

import (
	"context"
	"fmt"
	"strings"

	"learningodyssey/internal/adventure"
	"learningodyssey/internal/llmgateway"
)

// Gateway is the narrow slice of llmgateway.Gateway the synthesizer needs.
type Gateway interface {
	Complete(ctx context.Context, req llmgateway.CompletionRequest) (string, error)
}

// Synthesizer implements the two-step prompt synthesis: a concise scene
// description, then a meta-prompt merge into a 30-50 word image prompt.
type Synthesizer struct {
	gateway Gateway
	client  *Client
}

func NewSynthesizer(gateway Gateway, client *Client) *Synthesizer {
	return &Synthesizer{gateway: gateway, client: client}
}

const sceneDescriptionSystemPrompt = "You describe one visual scene from a chapter of fiction in 50 words or fewer. Be concrete and visually specific: setting, lighting, composition, and any character in frame. No narration, no dialogue, no abstract themes."

// DescribeScene is step 1(a): the concise, visually specific scene
// description produced by the reasoning tier.
func (s *Synthesizer) DescribeScene(ctx context.Context, chapterContent string) (string, error) {
	return s.gateway.Complete(ctx, llmgateway.CompletionRequest{
		System:  sceneDescriptionSystemPrompt,
		Prompt:  chapterContent,
		UseCase: llmgateway.UseCaseImageSceneDescription,
	})
}

// SceneInputs is step 1's gathered material for step 2's synthesis.
type SceneInputs struct {
	SceneDescription       string
	ProtagonistDescription string
	Agency                 adventure.Agency
	SensoryVisuals         []string
	CharactersInScene      map[string]string // character name -> visual description
}

const expertPromptEngineerSystemPrompt = `You are an Expert Prompt Engineer for a children's storybook illustrator.
Merge the given inputs into a single image prompt of 30 to 50 words.

Rules:
1. The scene description is the primary focus; everything else supports it.
2. When a character's evolved visual description is given, it overrides the base protagonist look.
3. Weave in the companion/ability/artifact/profession detail using this exact phrasing by category: companion -> "accompanied by"; ability -> "with the power of"; artifact -> "wielding"; profession -> "as a".
4. Apply a sensory visual detail only when it naturally fits the scene; never force one in.
5. The output must read as a "colorful storybook illustration" and nothing else: no preamble, no quotes, no explanation.`

// Synthesize is step 2: a single LLM call merging inputs into the final
// image prompt, which the caller submits to the image endpoint.
func (s *Synthesizer) Synthesize(ctx context.Context, in SceneInputs) (string, error) {
	prompt, err := s.gateway.Complete(ctx, llmgateway.CompletionRequest{
		System:  expertPromptEngineerSystemPrompt,
		Prompt:  buildMergeInput(in),
		UseCase: llmgateway.UseCaseImagePromptSynthesis,
	})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(prompt), nil
}

func buildMergeInput(in SceneInputs) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scene description: %s\n", in.SceneDescription)

	// CharactersInScene is keyed by the character's actual in-text name (see
	// llmcontracts.CharacterVisualUpdatePrompt), never the literal string
	// "protagonist" — so the evolved look is only found under the name the
	// protagonist has actually taken on, i.e. the committed agency name. A
	// companion or artifact agency names a separate entity, not the
	// protagonist, so its entry never replaces the protagonist's look.
	protagonist := in.ProtagonistDescription
	agencyIsProtagonist := in.Agency.Name != "" &&
		in.Agency.Category != adventure.AgencyCompanion &&
		in.Agency.Category != adventure.AgencyArtifact
	if agencyIsProtagonist {
		if visual, ok := in.CharactersInScene[in.Agency.Name]; ok && visual != "" {
			protagonist = visual
		}
	}
	fmt.Fprintf(&b, "Protagonist appearance: %s\n", protagonist)

	for name, visual := range in.CharactersInScene {
		if agencyIsProtagonist && name == in.Agency.Name {
			continue
		}
		fmt.Fprintf(&b, "Character %q appearance: %s\n", name, visual)
	}

	if in.Agency.Name != "" {
		fmt.Fprintf(&b, "Agency: category=%s name=%q visual_details=%q\n", in.Agency.Category, in.Agency.Name, in.Agency.VisualDetails)
	}

	if len(in.SensoryVisuals) > 0 {
		fmt.Fprintf(&b, "Available sensory visual details: %s\n", strings.Join(in.SensoryVisuals, "; "))
	}

	return b.String()
}

// GenerateAndSubmit runs both synthesis steps and submits the result to the
// image endpoint, returning the image URL. Callers MUST invoke this from a
// goroutine launched independently of word-paced streaming; it never blocks
// narrative delivery.
func (s *Synthesizer) GenerateAndSubmit(ctx context.Context, chapterContent string, in SceneInputs) (string, error) {
	description, err := s.DescribeScene(ctx, chapterContent)
	if err != nil {
		return "", fmt.Errorf("describe scene: %w", err)
	}
	in.SceneDescription = description

	prompt, err := s.Synthesize(ctx, in)
	if err != nil {
		return "", fmt.Errorf("synthesize prompt: %w", err)
	}

	url, err := s.client.GenerateImage(ctx, prompt)
	if err != nil {
		return "", fmt.Errorf("generate image: %w", err)
	}
	return url, nil
}
