package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/courseimport/internal/config"
	"github.com/JonMunkholm/courseimport/internal/core"
	"github.com/JonMunkholm/courseimport/internal/logging"
	"github.com/JonMunkholm/courseimport/internal/schema"
)

const testCSV = "Pilar,Tipo,Nome,Módulo,Aula,transcription,youtube_link,video_summary\n" +
	"IA,Curso,A,M1,L1,t1,,\n" +
	"IA,Curso,A,M1,L2,t2,,\n" +
	"Dados,Masterclass,B,M1,L1,t3,,\n"

func testConfig(t *testing.T, vars map[string]string) *config.Config {
	t.Helper()
	env := map[string]string{
		"SUPABASE_URL":         "https://example.supabase.co",
		"SUPABASE_SERVICE_KEY": "service-key",
	}
	for k, v := range vars {
		env[k] = v
	}
	cfg, err := config.LoadFrom(func(k string) string { return env[k] })
	require.NoError(t, err)
	return cfg
}

func TestPlanImport(t *testing.T) {
	withArtifacts := t.TempDir()
	for _, name := range []string{core.CoursesFile, core.LessonsFile} {
		require.NoError(t, os.WriteFile(filepath.Join(withArtifacts, name), []byte("[]"), 0o644))
	}
	empty := t.TempDir()

	tests := []struct {
		name    string
		opts    importOptions
		dataDir string
		want    importPlan
	}{
		{
			name:    "explicit artifacts",
			opts:    importOptions{coursesPath: "c.json", lessonsPath: "l.json"},
			dataDir: empty,
			want:    importPlan{coursesPath: "c.json", lessonsPath: "l.json"},
		},
		{
			name:    "explicit csv keeps output dir",
			opts:    importOptions{csvPath: "in.csv", outputDir: "out"},
			dataDir: withArtifacts,
			want:    importPlan{csvPath: "in.csv", outputDir: "out"},
		},
		{
			name:    "existing artifacts are reused",
			dataDir: withArtifacts,
			want: importPlan{
				coursesPath: filepath.Join(withArtifacts, core.CoursesFile),
				lessonsPath: filepath.Join(withArtifacts, core.LessonsFile),
			},
		},
		{
			name:    "reprocess ignores artifacts",
			opts:    importOptions{reprocess: true},
			dataDir: withArtifacts,
			want:    importPlan{csvPath: "default.csv", outputDir: withArtifacts},
		},
		{
			name:    "no artifacts falls back to csv",
			dataDir: empty,
			want:    importPlan{csvPath: "default.csv", outputDir: empty},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.ImportConfig{CSVPath: "default.csv", DataDir: tt.dataDir}
			assert.Equal(t, tt.want, planImport(tt.opts, cfg))
		})
	}
}

func TestBuildOptions(t *testing.T) {
	cfg := config.ImportConfig{
		CourseKey:   []string{"nome"},
		Schema:      "auto",
		OnConflict:  true,
		LessonDelay: 0,
	}

	o, err := buildOptions(importOptions{dryRun: true, courseKey: "pilar, nome", schemaName: schema.NameProduction, successPolicy: "zero-errors"}, cfg)
	require.NoError(t, err)
	assert.True(t, o.DryRun)
	assert.True(t, o.OnConflict)
	assert.Equal(t, []string{"pilar", "nome"}, o.CourseKey)
	assert.Nil(t, o.Columns)
	assert.Equal(t, schema.NameProduction, o.Schema, "named layouts resolve in the normalizer")
	require.NotNil(t, o.Policy)
	assert.Equal(t, "zero-errors", o.Policy.Name())

	o, err = buildOptions(importOptions{}, cfg)
	require.NoError(t, err)
	assert.Nil(t, o.Columns)
	assert.Equal(t, "auto", o.Schema, "auto leaves detection to the normalizer")
	assert.Nil(t, o.Policy, "entry point default applies")
	assert.Equal(t, []string{"nome"}, o.CourseKey)
}

func TestBuildOptions_Errors(t *testing.T) {
	cfg := config.ImportConfig{CourseKey: []string{"nome"}}
	tests := []struct {
		name string
		opts importOptions
	}{
		{"course key without nome", importOptions{courseKey: "pilar"}},
		{"unknown course key column", importOptions{courseKey: "nome,descricao"}},
		{"unknown schema", importOptions{schemaName: "legacy"}},
		{"missing schema file", importOptions{schemaFile: filepath.Join(t.TempDir(), "none.yaml")}},
		{"unknown policy", importOptions{successPolicy: "lenient"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := buildOptions(tt.opts, cfg)
			assert.Error(t, err)
		})
	}
}

func TestResolveSchema_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layout.yaml")
	yaml := "name: legacy\ndetect: [curso, aula]\ncourse_name: [curso]\nlesson_name: [aula]\ntranscription: [transcricao]\n"
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o644))

	c, err := resolveSchema(schema.NameProduction, path)
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.Equal(t, "legacy", c.Name, "a schema file wins over a name")
}

func TestRunImport_DryRun(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "cursos.csv")
	require.NoError(t, os.WriteFile(csvPath, []byte(testCSV), 0o644))

	a := &app{cfg: testConfig(t, nil), logger: logging.Discard()}
	var out bytes.Buffer
	err := runImport(context.Background(), a, importOptions{dryRun: true, csvPath: csvPath}, &out)
	require.NoError(t, err)

	var got core.Outcome
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.True(t, got.Success)
	assert.True(t, got.Stats.DryRun)
	assert.Equal(t, 2, got.Stats.CoursesProcessed)
	assert.Equal(t, 3, got.Stats.LessonsProcessed)
	assert.True(t, core.ArtifactsExist(filepath.Join(dir, "processed")))
}

func TestRunImport_InputErrorExitsOne(t *testing.T) {
	a := &app{cfg: testConfig(t, nil), logger: logging.Discard()}
	err := runImport(context.Background(), a, importOptions{dryRun: true, csvPath: filepath.Join(t.TempDir(), "missing.csv")}, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, core.IsInputError(err))
	assert.Equal(t, exitFailed, exitCode(err))
}

func TestImportCmd_FlagValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"courses without lessons", []string{"--courses", "c.json"}},
		{"csv with artifacts", []string{"--csv", "in.csv", "--courses", "c.json", "--lessons", "l.json"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := newImportCmd(&app{})
			require.NoError(t, cmd.ParseFlags(tt.args))
			err := cmd.PreRunE(cmd, nil)
			require.Error(t, err)
			assert.Equal(t, exitUsage, exitCode(err))
		})
	}
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, exitOK, exitCode(nil))
	assert.Equal(t, exitFailed, exitCode(errors.New("boom")))
	assert.Equal(t, exitUsage, exitCode(fmt.Errorf("wrapped: %w", withCode(exitUsage, errors.New("bad flag")))))
	assert.Nil(t, withCode(exitUsage, nil))
}
