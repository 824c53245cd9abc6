package session

import "encoding/json"

// inboundEnvelope is the wire shape of every client-to-server message. Only
// the fields relevant to Type are populated; unused fields are left zero.
// The vocabulary reconciles the two inbound message descriptions: `choice`
// carries chosen_path/choice_text, and chosen_path's special value
// "reveal_summary" is what routes a CONCLUSION-chapter response to
// ApplyRevealSummary instead of ApplyStoryChoice/ApplyLessonAnswer.
type inboundEnvelope struct {
	Type string `json:"type"`

	StoryCategory string `json:"story_category,omitempty"`
	LessonTopic   string `json:"lesson_topic,omitempty"`
	ClientUUID    string `json:"client_uuid,omitempty"`
	Resume        bool   `json:"resume,omitempty"`

	ChosenPath string `json:"chosen_path,omitempty"`
	ChoiceText string `json:"choice_text,omitempty"`
}

const (
	inboundStart   = "start"
	inboundChoice  = "choice"
	inboundPing    = "client_ping"
	revealSummaryChosenPath = "reveal_summary"
)

// outboundEnvelope is the wire shape of every server-to-client message; a
// single struct with omitempty fields keeps the writer goroutine generic
// rather than needing one type switch per message kind.
type outboundEnvelope struct {
	Type string `json:"type"`

	CurrentChapter int    `json:"current_chapter,omitempty"`
	TotalChapters  int    `json:"total_chapters,omitempty"`
	ChapterType    string `json:"chapter_type,omitempty"`

	Text string `json:"text,omitempty"`

	ChapterNumber int    `json:"chapter_number,omitempty"`
	ImagePayload  string `json:"image_payload,omitempty"`
	OptionIndex   int    `json:"option_index,omitempty"`

	StateID string `json:"state_id,omitempty"`

	Kind    string `json:"kind,omitempty"`
	Message string `json:"message,omitempty"`
}

const (
	outboundChapterUpdate      = "chapter_update"
	outboundTextFragment       = "text_fragment"
	outboundChapterComplete    = "chapter_complete"
	outboundImageUpdate        = "image_update"
	outboundAgencyImageUpdate  = "agency_image_update"
	outboundStoryComplete      = "story_complete"
	outboundSummaryReady       = "summary_ready"
	outboundLoadingPhrase      = "loading_phrase"
	outboundError              = "error"
)

func (e outboundEnvelope) marshal() ([]byte, error) {
	return json.Marshal(e)
}

// loadingPhrases is the curated rotation shown while a loader is visible
// (waiting on the first text_fragment of a chapter). 45 entries, per the
// curated-list size named for this rotation.
var loadingPhrases = []string{
	"Gathering starlight for the next page...",
	"Sharpening the storyteller's pencil...",
	"Consulting the old maps...",
	"Listening for the wind's next word...",
	"Stoking the lantern for the path ahead...",
	"Counting footsteps in the dark...",
	"Unfolding a weathered page...",
	"Waking the sleeping narrator...",
	"Polishing a half-forgotten memory...",
	"Tuning the strings of the tale...",
	"Brushing dust off an old chapter...",
	"Following a trail of ink...",
	"Searching for the right word...",
	"Letting the story catch its breath...",
	"Threading together loose ends...",
	"Checking the compass one more time...",
	"Weighing a choice not yet made...",
	"Coaxing the embers back to life...",
	"Smoothing a crease in the parchment...",
	"Practicing the next line aloud...",
	"Gathering courage for what's next...",
	"Recalling a half-remembered song...",
	"Tracing the shape of what's coming...",
	"Waiting for the ink to dry...",
	"Rehearsing the turn of the page...",
	"Borrowing a little more time...",
	"Watching shadows rearrange themselves...",
	"Letting the plot settle like dust...",
	"Stirring the pot of possibilities...",
	"Humming the theme of this chapter...",
	"Untangling a knot in the story...",
	"Double-checking the protagonist's resolve...",
	"Sketching the next scene in charcoal...",
	"Listening for footsteps offstage...",
	"Letting the quiet do some work...",
	"Aligning the stars for this scene...",
	"Retrieving a dropped thread of plot...",
	"Warming up the narrator's voice...",
	"Measuring the weight of a choice...",
	"Setting the scene just so...",
	"Waiting on a patient muse...",
	"Reading the room before the reveal...",
	"Testing the next sentence for truth...",
	"Letting tension build a little longer...",
	"Almost ready to turn the page...",
}
