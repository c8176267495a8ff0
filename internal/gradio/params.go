package gradio

import "skribe/internal/transcriber"

// fileData is how Gradio expects uploaded files to be referenced in a call
// payload: the server-side path token wrapped in a typed object.
type fileData struct {
	Path     string   `json:"path"`
	OrigName string   `json:"orig_name,omitempty"`
	Meta     fileMeta `json:"meta"`
}

type fileMeta struct {
	Type string `json:"_type"`
}

func newFileData(serverPath, origName string) fileData {
	return fileData{
		Path:     serverPath,
		OrigName: origName,
		Meta:     fileMeta{Type: "gradio.FileData"},
	}
}

// callParams names every slot of the positional parameter vector the
// transcribe_file endpoint takes. The remote protocol is positional JSON;
// the named struct exists so a miscounted slot is a compile-visible field
// instead of a silent off-by-one. Serialization to positions happens only
// in vector(), which must stay in declaration order.
type callParams struct {
	Files              []fileData
	InputFolderPath    string
	IncludeSubdir      bool
	SaveSameDir        bool
	FileFormat         string
	AddTimestamp       bool
	Model              string
	Language           any // nil lets the service auto-detect
	IsTranslate        bool

	// Decoding hyperparameters, faster-whisper order.
	BeamSize                  int
	LogProbThreshold          float64
	NoSpeechThreshold         float64
	ComputeType               string
	BestOf                    int
	Patience                  float64
	ConditionOnPreviousText   bool
	PromptResetOnTemperature  float64
	InitialPrompt             string
	Temperature               float64
	CompressionRatioThreshold float64
	LengthPenalty             float64
	RepetitionPenalty         float64
	NoRepeatNgramSize         int
	Prefix                    any
	SuppressBlank             bool
	SuppressTokens            string
	MaxInitialTimestamp       float64
	WordTimestamps            bool
	PrependPunctuations       string
	AppendPunctuations        string
	MaxNewTokens              any
	ChunkLength               int
	HallucinationSilenceThreshold any
	Hotwords                  string
	LanguageDetectionThreshold float64
	LanguageDetectionSegments  int
	Device                     string

	// VAD block (disabled; preprocessing is out of scope here).
	EnableVAD            bool
	VADThreshold         float64
	MinSpeechDurationMS  int
	MaxSpeechDurationS   any
	MinSilenceDurationMS int
	SpeechPadMS          int
	BatchSize            int

	// Diarization block (disabled). DiarizationDevice still has to carry a
	// valid device string or the service rejects the call.
	EnableDiarization bool
	HFToken           string
	DiarizationDevice string
	NumSpeakers       any
	MinSpeakers       any
	MaxSpeakers       any

	// Background-music separation block (disabled).
	EnableBGMSeparation bool
	UVRModelSize        string
	EnableOffload       bool
}

// paramCount is the fixed width of the positional vector the service expects.
const paramCount = 53

// defaultCallParams mirrors the web UI defaults for everything the request
// does not override.
func defaultCallParams() callParams {
	return callParams{
		FileFormat:   "SRT",
		AddTimestamp: true,
		Model:        transcriber.DefaultModel,

		BeamSize:                  5,
		LogProbThreshold:          -1.0,
		NoSpeechThreshold:         0.6,
		ComputeType:               "float16",
		BestOf:                    5,
		Patience:                  1.0,
		ConditionOnPreviousText:   true,
		PromptResetOnTemperature:  0.5,
		CompressionRatioThreshold: 2.4,
		LengthPenalty:             1.0,
		RepetitionPenalty:         1.0,
		SuppressBlank:             true,
		SuppressTokens:            "[-1]",
		MaxInitialTimestamp:       1.0,
		PrependPunctuations:       `"'“¿([{-`,
		AppendPunctuations:        `"'.。,，!！?？:：”)]}、`,
		ChunkLength:               30,
		LanguageDetectionThreshold: 0.5,
		LanguageDetectionSegments:  1,
		Device:                     "cpu",

		VADThreshold:         0.5,
		MinSpeechDurationMS:  250,
		MinSilenceDurationMS: 2000,
		SpeechPadMS:          400,
		BatchSize:            24,

		DiarizationDevice: "cpu",

		UVRModelSize:  "UVR-MDX-NET-Inst_HQ_4",
		EnableOffload: true,
	}
}

// apply folds request hints into the parameter set; empty hints leave the
// configured defaults alone. Both device slots carry the same normalized
// device string.
func (p *callParams) apply(req transcriber.Request) {
	if req.Model != "" {
		p.Model = transcriber.NormalizeModel(req.Model)
	}
	if req.Language != "" {
		p.Language = req.Language
	}
	if req.Device != "" {
		device := transcriber.NormalizeDevice(req.Device)
		p.Device = device
		p.DiarizationDevice = device
	}

	if req.ComputeType != "" {
		p.ComputeType = req.ComputeType
	}
	if req.InitialPrompt != "" {
		p.InitialPrompt = req.InitialPrompt
	}
	if req.Prefix != "" {
		p.Prefix = req.Prefix
	}
	if req.Hotwords != "" {
		p.Hotwords = req.Hotwords
	}
	if req.MaxNewTokens > 0 {
		p.MaxNewTokens = req.MaxNewTokens
	}
	if req.HallucinationSilenceThreshold > 0 {
		p.HallucinationSilenceThreshold = req.HallucinationSilenceThreshold
	}
}

// vector serializes the named parameters into the fixed 53-position data
// array. Order here is the wire protocol; do not reorder.
func (p callParams) vector() []any {
	return []any{
		p.Files,
		p.InputFolderPath,
		p.IncludeSubdir,
		p.SaveSameDir,
		p.FileFormat,
		p.AddTimestamp,
		p.Model,
		p.Language,
		p.IsTranslate,
		p.BeamSize,
		p.LogProbThreshold,
		p.NoSpeechThreshold,
		p.ComputeType,
		p.BestOf,
		p.Patience,
		p.ConditionOnPreviousText,
		p.PromptResetOnTemperature,
		p.InitialPrompt,
		p.Temperature,
		p.CompressionRatioThreshold,
		p.LengthPenalty,
		p.RepetitionPenalty,
		p.NoRepeatNgramSize,
		p.Prefix,
		p.SuppressBlank,
		p.SuppressTokens,
		p.MaxInitialTimestamp,
		p.WordTimestamps,
		p.PrependPunctuations,
		p.AppendPunctuations,
		p.MaxNewTokens,
		p.ChunkLength,
		p.HallucinationSilenceThreshold,
		p.Hotwords,
		p.LanguageDetectionThreshold,
		p.LanguageDetectionSegments,
		p.Device,
		p.EnableVAD,
		p.VADThreshold,
		p.MinSpeechDurationMS,
		p.MaxSpeechDurationS,
		p.MinSilenceDurationMS,
		p.SpeechPadMS,
		p.BatchSize,
		p.EnableDiarization,
		p.HFToken,
		p.DiarizationDevice,
		p.NumSpeakers,
		p.MinSpeakers,
		p.MaxSpeakers,
		p.EnableBGMSeparation,
		p.UVRModelSize,
		p.EnableOffload,
	}
}
