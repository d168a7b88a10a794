package recognizer

import (
	"os"
	"sync"
	"time"

	vosk "github.com/alphacep/vosk-api/go"

	"github.com/livecaptions/livecaptions/internal/errors"
	"github.com/livecaptions/livecaptions/internal/logger"
)

// Model is a loaded Vosk model shared by the recognizers built from it.
// It is reference counted: LoadModel returns one reference, Retain adds one
// and Close drops one. The engine model is freed with the last reference.
// Recognizers already built keep working after that since the engine
// counts its own references.
type Model struct {
	path     string
	language string

	mu    sync.Mutex
	model *vosk.VoskModel
	free  func()
	refs  int
}

// LoadModel loads the model at path synchronously. It never returns a
// partially initialised model.
func LoadModel(path, language string) (*Model, error) {
	log := GetLogger()

	info, err := os.Stat(path)
	if err != nil || !info.IsDir() {
		if err == nil {
			err = errors.NewStd("model path is not a directory")
		}
		return nil, errors.ModelError(err, path, language)
	}

	start := time.Now()
	vm, err := vosk.NewModel(path)
	if err != nil {
		return nil, errors.ModelError(err, path, language)
	}

	log.Info("speech model loaded",
		logger.String("path", path),
		logger.String("language", language),
		logger.Duration("load_time", time.Since(start)))

	return &Model{path: path, language: language, model: vm, free: vm.Free, refs: 1}, nil
}

// Path returns the model directory.
func (m *Model) Path() string { return m.path }

// Language returns the language the model was configured for.
func (m *Model) Language() string { return m.language }

// Retain adds a reference. It fails once the model has been freed.
func (m *Model) Retain() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.refs == 0 {
		return errModelFreed(m.path)
	}
	m.refs++
	return nil
}

// NewRecognizer builds a fresh decoding state at sampleRate.
func (m *Model) NewRecognizer(sampleRate int) (*Recognizer, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refs == 0 {
		return nil, errModelFreed(m.path)
	}

	rec, err := vosk.NewRecognizer(m.model, float64(sampleRate))
	if err != nil {
		return nil, errors.New(err).
			Component("recognizer").
			Category(errors.CategoryModelLoad).
			ModelContext(m.path, m.language).
			Context("sample_rate", sampleRate).
			Build()
	}
	return New(rec, sampleRate, m.language), nil
}

// Close drops a reference and frees the model with the last one.
func (m *Model) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refs == 0 {
		return
	}
	m.refs--
	if m.refs == 0 {
		if m.free != nil {
			m.free()
		}
		m.model = nil
		GetLogger().Debug("speech model freed", logger.String("path", m.path))
	}
}

func errModelFreed(path string) error {
	return errors.Newf("speech model has been freed").
		Component("recognizer").
		Category(errors.CategoryState).
		Context("model_path", path).
		Build()
}

// SetEngineLogging toggles the engine's own log output.
func SetEngineLogging(enabled bool) {
	if enabled {
		vosk.SetLogLevel(0)
		return
	}
	vosk.SetLogLevel(-1)
}
