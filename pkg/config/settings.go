package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment variables that override settings,
// e.g. BEATEVAL_NUM_WORKERS.
const EnvPrefix = "BEATEVAL"

// Settings are the merged program settings (flags > env > config file > defaults).
type Settings struct {
	LogDir     string `mapstructure:"logdir"`
	Preload    bool   `mapstructure:"preload"`
	NumWorkers int    `mapstructure:"num_workers"`
	Output     string `mapstructure:"output"`
	CUDA       bool   `mapstructure:"cuda"`
	Debug      bool   `mapstructure:"debug"`

	BeatlesAudioDir    string `mapstructure:"beatles_audio_dir"`
	BeatlesAnnotDir    string `mapstructure:"beatles_annot_dir"`
	BallroomAudioDir   string `mapstructure:"ballroom_audio_dir"`
	BallroomAnnotDir   string `mapstructure:"ballroom_annot_dir"`
	HainsworthAudioDir string `mapstructure:"hainsworth_audio_dir"`
	HainsworthAnnotDir string `mapstructure:"hainsworth_annot_dir"`
	RWCPopularAudioDir string `mapstructure:"rwc_popular_audio_dir"`
	RWCPopularAnnotDir string `mapstructure:"rwc_popular_annot_dir"`
}

// DatasetDirs locates the audio and annotations of one dataset.
type DatasetDirs struct {
	Audio string
	Annot string
}

// SetDefaults registers the default value of every setting.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logdir", "./")
	v.SetDefault("preload", false)
	v.SetDefault("num_workers", 0)
	v.SetDefault("output", "results/test.json")
	v.SetDefault("cuda", false)
	v.SetDefault("debug", false)
	for _, key := range datasetKeys {
		v.SetDefault(key, "./data")
	}
}

var datasetKeys = []string{
	"beatles_audio_dir", "beatles_annot_dir",
	"ballroom_audio_dir", "ballroom_annot_dir",
	"hainsworth_audio_dir", "hainsworth_annot_dir",
	"rwc_popular_audio_dir", "rwc_popular_annot_dir",
}

// LoadSettings merges flags, environment and an optional config file into Settings.
// An empty file means no config file is read.
func LoadSettings(v *viper.Viper, flags *pflag.FlagSet, file string) (*Settings, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, fmt.Errorf("bind flags: %w", err)
		}
	}

	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to load config: %w", err)
			}
		}
	}

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if s.NumWorkers < 0 {
		return nil, fmt.Errorf("num_workers must not be negative, got %d", s.NumWorkers)
	}
	return &s, nil
}

// Dirs returns the directories configured for the named dataset.
func (s *Settings) Dirs(dataset string) (DatasetDirs, error) {
	switch dataset {
	case "beatles":
		return DatasetDirs{Audio: s.BeatlesAudioDir, Annot: s.BeatlesAnnotDir}, nil
	case "ballroom":
		return DatasetDirs{Audio: s.BallroomAudioDir, Annot: s.BallroomAnnotDir}, nil
	case "hainsworth":
		return DatasetDirs{Audio: s.HainsworthAudioDir, Annot: s.HainsworthAnnotDir}, nil
	case "rwc_popular":
		return DatasetDirs{Audio: s.RWCPopularAudioDir, Annot: s.RWCPopularAnnotDir}, nil
	default:
		return DatasetDirs{}, fmt.Errorf("unknown dataset %q", dataset)
	}
}
