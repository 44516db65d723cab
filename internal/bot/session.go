package bot

import (
	"github.com/voxpipe/voxpipe/internal/aggregate"
	"github.com/voxpipe/voxpipe/internal/processor"
	"github.com/voxpipe/voxpipe/pkg/frame"
	"github.com/voxpipe/voxpipe/pkg/pipeline"
	"github.com/voxpipe/voxpipe/pkg/provider/tts"
	"github.com/voxpipe/voxpipe/pkg/provider/vad"
)

// assemble builds the session pipeline around the given transport stages:
//
//	in -> [vad] -> asr -> user_aggregator -> llm -> tts -> out -> assistant_aggregator
//
// The assistant aggregator sits behind the output stage so the client hears
// audio with no aggregation in the hot path; text deltas still reach it in
// frame order.
func assemble(cfg Config, deps Deps, in, out pipeline.Processor) *pipeline.Task {
	conv := aggregate.NewConversation(cfg.LLM.Messages...)

	stages := make([]pipeline.Processor, 0, 8)
	stages = append(stages, in)
	if cfg.VADEnabled && deps.VAD != nil {
		stages = append(stages, processor.NewVAD(deps.VAD, vad.Config{}))
	}

	var asrOpts []processor.ASROption
	if cfg.LLM.Language != "" {
		asrOpts = append(asrOpts, processor.WithASRLanguage(cfg.LLM.Language))
	}
	stages = append(stages,
		processor.NewASR(deps.STT, asrOpts...),
		aggregate.NewUser(conv),
		processor.NewLLM(deps.LLM),
		processor.NewTTS(deps.TTS, tts.VoiceProfile{ID: cfg.TTS.Voice}),
		out,
		aggregate.NewAssistant(conv),
	)

	outFmt := outputFormat(deps.TTS)
	return pipeline.NewTask(pipeline.New(stages...), pipeline.Params{
		AllowInterruptions: cfg.AllowInterruptions,
		AudioInSampleRate:  16000,
		AudioInChannels:    1,
		AudioOutSampleRate: outFmt.SampleRate,
		AudioOutChannels:   outFmt.Channels,
	})
}

// outputFormat returns the PCM format the session emits, taken from the TTS
// provider so the transports frame audio the way it is actually synthesised.
// Zero fields fall back to 16 kHz mono.
func outputFormat(p tts.Provider) tts.StreamInfo {
	var info tts.StreamInfo
	if p != nil {
		info = p.StreamInfo()
	}
	if info.SampleRate == 0 {
		info.SampleRate = 16000
	}
	if info.Channels == 0 {
		info.Channels = 1
	}
	return info
}

// greet queues the introduce-yourself turn. The user aggregator folds it
// into the conversation and triggers the first completion.
func greet(task *pipeline.Task, language string) error {
	return task.QueueFrame(frame.LLMMessagesFrame{
		Messages: []frame.Message{introMessage(language)},
	})
}
