// SPDX-License-Identifier: Apache-2.0
/*
Copyright (C) 2024 The Podmod Authors.
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at
    http://www.apache.org/licenses/LICENSE-2.0
Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package lifecycle

import (
	"context"
	"errors"
	"io"
	"sort"
	"testing"

	"github.com/podmod/podmod/pkg/config"
	"github.com/podmod/podmod/pkg/engine"
	"github.com/podmod/podmod/pkg/image"
	"github.com/podmod/podmod/pkg/kernelrelease"
	"github.com/podmod/podmod/pkg/modules"
	logger "github.com/sirupsen/logrus"
	"github.com/spf13/afero"
	"gotest.tools/assert"
)

const (
	testKernel = "6.6.1-200.fc39.x86_64"
	testArch   = "x86_64"
)

type fakeProbe struct {
	kernel     string
	loaded     map[string]bool
	secureBoot bool
	err        error
}

func (p *fakeProbe) KernelRelease(context.Context) (kernelrelease.KernelRelease, error) {
	if p.err != nil {
		return kernelrelease.KernelRelease{}, p.err
	}
	return kernelrelease.FromString(p.kernel), nil
}

func (p *fakeProbe) Architecture(context.Context) (string, error) {
	return testArch, p.err
}

func (p *fakeProbe) IsModuleLoaded(_ context.Context, name string) (bool, error) {
	return p.loaded[name], p.err
}

func (p *fakeProbe) IsSecureBootEnabled(context.Context) (bool, error) {
	return p.secureBoot, p.err
}

// fakeEngine keeps a set of local images; a successful build adds one.
type fakeEngine struct {
	images    map[image.ID]bool
	builds    []engine.BuildOptions
	runs      []engine.RunOptions
	prunes    int
	buildErrs map[image.ID]error
	runErr    error
}

func newFakeEngine(present ...image.ID) *fakeEngine {
	e := &fakeEngine{images: map[image.ID]bool{}, buildErrs: map[image.ID]error{}}
	for _, id := range present {
		e.images[id] = true
	}
	return e
}

func (e *fakeEngine) ImageExists(_ context.Context, id image.ID) (bool, error) {
	return e.images[id], nil
}

func (e *fakeEngine) Build(_ context.Context, opts engine.BuildOptions) error {
	e.builds = append(e.builds, opts)
	if err := e.buildErrs[opts.Tag]; err != nil {
		return err
	}
	e.images[opts.Tag] = true
	return nil
}

func (e *fakeEngine) Run(_ context.Context, opts engine.RunOptions) error {
	e.runs = append(e.runs, opts)
	return e.runErr
}

func (e *fakeEngine) Prune(context.Context) error {
	e.prunes++
	return nil
}

func (e *fakeEngine) builtTags() []image.ID {
	tags := make([]image.ID, 0, len(e.builds))
	for _, b := range e.builds {
		tags = append(tags, b.Tag)
	}
	return tags
}

func newTestRegistry(t *testing.T, names ...string) *modules.Registry {
	t.Helper()
	fs := afero.NewMemMapFs()
	assert.NilError(t, fs.MkdirAll("/data/common", 0o755))
	for _, n := range names {
		assert.NilError(t, fs.MkdirAll("/data/modules/"+n, 0o755))
	}
	return modules.NewRegistry(fs, "/data")
}

func newTestManager(t *testing.T, p *fakeProbe, e *fakeEngine) *Manager {
	t.Helper()
	l := logger.New()
	l.SetOutput(io.Discard)
	return New(p, e, newTestRegistry(t, "foo", "bar"), WithLogger(l), WithToolVersion("1.0.0"))
}

func fooModule() config.Module {
	return config.Module{
		Name:          "foo",
		Version:       "0.12.7",
		BuildArgs:     map[string]string{"GIT_REF": "v0.12.7", "A_FIRST": "1"},
		KernelArgs:    []string{"devices=2", "exclusive_caps=1"},
		ContainerArgs: []string{"--network=host"},
	}
}

var fooImage = image.Module("foo", "0.12.7", testKernel)

func TestBuildFromScratch(t *testing.T) {
	e := newFakeEngine()
	m := newTestManager(t, &fakeProbe{kernel: testKernel}, e)

	assert.NilError(t, m.Build(context.Background(), fooModule(), BuildOptions{}))
	assert.DeepEqual(t, []engine.BuildOptions{
		{
			Tag:           image.Builder(testKernel),
			Containerfile: "Builder.containerfile",
			ContextDir:    "/data/common",
			BuildArgs: []engine.BuildArg{
				{Key: "ARCH", Value: testArch},
				{Key: "KERNEL_VERSION", Value: testKernel},
			},
		},
		{
			Tag:           image.Runtime(testKernel),
			Containerfile: "Runtime.containerfile",
			ContextDir:    "/data/common",
			BuildArgs: []engine.BuildArg{
				{Key: "KERNEL_VERSION", Value: testKernel},
				{Key: "PODMOD_VERSION", Value: "1.0.0"},
			},
		},
		{
			Tag:        fooImage,
			ContextDir: "/data/modules/foo",
			BuildArgs: []engine.BuildArg{
				{Key: "ARCH", Value: testArch},
				{Key: "KERNEL_VERSION", Value: testKernel},
				{Key: "MODULE_VERSION", Value: "0.12.7"},
				{Key: "PODMOD_VERSION", Value: "1.0.0"},
				{Key: "A_FIRST", Value: "1"},
				{Key: "GIT_REF", Value: "v0.12.7"},
			},
		},
	}, e.builds)
	assert.Equal(t, 1, e.prunes)
}

func TestBuildReusesSharedImages(t *testing.T) {
	e := newFakeEngine(image.Builder(testKernel), image.Runtime(testKernel))
	m := newTestManager(t, &fakeProbe{kernel: testKernel}, e)

	assert.NilError(t, m.Build(context.Background(), fooModule(), BuildOptions{NoPrune: true}))
	assert.DeepEqual(t, []image.ID{fooImage}, e.builtTags())
	assert.Equal(t, 0, e.prunes)
}

func TestBuildRuntimeOnlyMissing(t *testing.T) {
	e := newFakeEngine(image.Builder(testKernel))
	m := newTestManager(t, &fakeProbe{kernel: testKernel}, e)

	assert.NilError(t, m.Build(context.Background(), fooModule(), BuildOptions{}))
	assert.DeepEqual(t, []image.ID{image.Runtime(testKernel), fooImage}, e.builtTags())
}

func TestBuildIdempotent(t *testing.T) {
	e := newFakeEngine()
	m := newTestManager(t, &fakeProbe{kernel: testKernel}, e)
	opts := BuildOptions{Idempotent: true}

	assert.NilError(t, m.Build(context.Background(), fooModule(), opts))
	assert.Equal(t, 3, len(e.builds))

	assert.NilError(t, m.Build(context.Background(), fooModule(), opts))
	assert.Equal(t, 3, len(e.builds))
	assert.Equal(t, 1, e.prunes)
}

func TestBuildAlreadyBuilt(t *testing.T) {
	e := newFakeEngine(fooImage)
	m := newTestManager(t, &fakeProbe{kernel: testKernel}, e)

	err := m.Build(context.Background(), fooModule(), BuildOptions{})
	assert.Assert(t, errors.Is(err, ErrAlreadyBuilt))
	var serr *StateError
	assert.Assert(t, errors.As(err, &serr))
	assert.Equal(t, "foo", serr.Module)
	assert.Equal(t, fooImage, serr.Image)
	assert.Equal(t, 0, len(e.builds))
	assert.Equal(t, 0, e.prunes)
}

func TestBuildNewKernelRebuilds(t *testing.T) {
	e := newFakeEngine(fooImage)
	p := &fakeProbe{kernel: "6.7.0-100.fc39.x86_64"}
	m := newTestManager(t, p, e)

	assert.NilError(t, m.Build(context.Background(), fooModule(), BuildOptions{}))
	assert.Equal(t, 3, len(e.builds))
	assert.Equal(t, image.Module("foo", "0.12.7", "6.7.0-100.fc39.x86_64"), e.builds[2].Tag)
}

func TestBuildUnsupported(t *testing.T) {
	e := newFakeEngine()
	m := newTestManager(t, &fakeProbe{kernel: testKernel}, e)
	mod := fooModule()
	mod.Name = "baz"

	err := m.Build(context.Background(), mod, BuildOptions{})
	assert.Assert(t, errors.Is(err, ErrUnsupportedModule))
	assert.ErrorContains(t, err, `"baz"`)
	assert.Equal(t, 0, len(e.builds))
}

func TestBuildFailureKeepsSharedImages(t *testing.T) {
	e := newFakeEngine()
	boom := &engine.StepError{Step: "building image " + fooImage.String(), ExitCode: 1}
	e.buildErrs[fooImage] = boom
	m := newTestManager(t, &fakeProbe{kernel: testKernel}, e)

	err := m.Build(context.Background(), fooModule(), BuildOptions{})
	assert.Assert(t, errors.Is(err, engine.ErrEngine))
	assert.Equal(t, 0, e.prunes)
	assert.Assert(t, e.images[image.Builder(testKernel)])
	assert.Assert(t, e.images[image.Runtime(testKernel)])

	// a retry only builds what is missing
	delete(e.buildErrs, fooImage)
	assert.NilError(t, m.Build(context.Background(), fooModule(), BuildOptions{}))
	assert.DeepEqual(t, []image.ID{
		image.Builder(testKernel),
		image.Runtime(testKernel),
		fooImage,
		fooImage,
	}, e.builtTags())
}

func TestBuildBuilderFailureStops(t *testing.T) {
	e := newFakeEngine()
	e.buildErrs[image.Builder(testKernel)] = &engine.StepError{Step: "building", ExitCode: 1}
	m := newTestManager(t, &fakeProbe{kernel: testKernel}, e)

	err := m.Build(context.Background(), fooModule(), BuildOptions{})
	assert.Assert(t, errors.Is(err, engine.ErrEngine))
	assert.DeepEqual(t, []image.ID{image.Builder(testKernel)}, e.builtTags())
}

func TestProbeFailure(t *testing.T) {
	probeErr := errors.New("uname: not found")
	p := &fakeProbe{kernel: testKernel, err: probeErr}
	e := newFakeEngine(fooImage)
	m := newTestManager(t, p, e)

	ops := map[string]func() error{
		"build":  func() error { return m.Build(context.Background(), fooModule(), BuildOptions{}) },
		"load":   func() error { return m.Load(context.Background(), fooModule(), true) },
		"unload": func() error { return m.Unload(context.Background(), fooModule(), true) },
		"run":    func() error { return m.Run(context.Background(), fooModule(), []string{"true"}) },
	}
	for name, op := range ops {
		t.Run(name, func(t *testing.T) {
			assert.Assert(t, errors.Is(op(), probeErr))
		})
	}
	assert.Equal(t, 0, len(e.builds))
	assert.Equal(t, 0, len(e.runs))
}

func TestLoad(t *testing.T) {
	tests := map[string]struct {
		loaded     bool
		secureBoot bool
		built      bool
		idempotent bool
		wantErr    error
		wantRun    bool
	}{
		"loads":                         {built: true, wantRun: true},
		"loads idempotent":              {built: true, idempotent: true, wantRun: true},
		"already loaded":                {loaded: true, built: true, wantErr: ErrAlreadyLoaded},
		"already loaded idempotent":     {loaded: true, built: true, idempotent: true},
		"loaded idempotent secure boot": {loaded: true, secureBoot: true, idempotent: true},
		"loaded secure boot":            {loaded: true, secureBoot: true, wantErr: ErrAlreadyLoaded},
		"secure boot":                   {secureBoot: true, built: true, wantErr: ErrSecureBootEnabled},
		"secure boot idempotent":        {secureBoot: true, built: true, idempotent: true, wantErr: ErrSecureBootEnabled},
		"not built":                     {wantErr: ErrNotBuilt},
		"not built idempotent":          {idempotent: true, wantErr: ErrNotBuilt},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			p := &fakeProbe{kernel: testKernel, loaded: map[string]bool{"foo": tt.loaded}, secureBoot: tt.secureBoot}
			e := newFakeEngine()
			if tt.built {
				e.images[fooImage] = true
			}
			m := newTestManager(t, p, e)

			err := m.Load(context.Background(), fooModule(), tt.idempotent)
			if tt.wantErr != nil {
				assert.Assert(t, errors.Is(err, tt.wantErr), "got %v", err)
			} else {
				assert.NilError(t, err)
			}
			if !tt.wantRun {
				assert.Equal(t, 0, len(e.runs))
				return
			}
			assert.DeepEqual(t, []engine.RunOptions{{
				Image:   fooImage,
				Command: []string{"load", "devices=2", "exclusive_caps=1"},
			}}, e.runs)
		})
	}
}

func TestLoadNeverBuilds(t *testing.T) {
	e := newFakeEngine()
	m := newTestManager(t, &fakeProbe{kernel: testKernel}, e)
	err := m.Load(context.Background(), fooModule(), false)
	assert.Assert(t, errors.Is(err, ErrNotBuilt))
	assert.ErrorContains(t, err, fooImage.String())
	assert.Equal(t, 0, len(e.builds))
}

func TestUnload(t *testing.T) {
	tests := map[string]struct {
		loaded     bool
		idempotent bool
		wantErr    error
		wantRun    bool
	}{
		"unloads":               {loaded: true, wantRun: true},
		"unloads idempotent":    {loaded: true, idempotent: true, wantRun: true},
		"not loaded":            {wantErr: ErrNotLoaded},
		"not loaded idempotent": {idempotent: true},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			p := &fakeProbe{kernel: testKernel, loaded: map[string]bool{"foo": tt.loaded}}
			e := newFakeEngine(fooImage)
			m := newTestManager(t, p, e)

			err := m.Unload(context.Background(), fooModule(), tt.idempotent)
			if tt.wantErr != nil {
				assert.Assert(t, errors.Is(err, tt.wantErr), "got %v", err)
				assert.Error(t, err, "module is not loaded: foo")
			} else {
				assert.NilError(t, err)
			}
			if !tt.wantRun {
				assert.Equal(t, 0, len(e.runs))
				return
			}
			assert.DeepEqual(t, []engine.RunOptions{{
				Image:   fooImage,
				Command: []string{"unload"},
			}}, e.runs)
		})
	}
}

func TestRun(t *testing.T) {
	e := newFakeEngine(fooImage)
	m := newTestManager(t, &fakeProbe{kernel: testKernel}, e)

	assert.NilError(t, m.Run(context.Background(), fooModule(), []string{"modinfo", "foo"}))
	assert.DeepEqual(t, []engine.RunOptions{{
		Image:     fooImage,
		ExtraArgs: []string{"--network=host"},
		Command:   []string{"modinfo", "foo"},
	}}, e.runs)
}

func TestRunNotBuilt(t *testing.T) {
	e := newFakeEngine()
	m := newTestManager(t, &fakeProbe{kernel: testKernel}, e)

	err := m.Run(context.Background(), fooModule(), []string{"true"})
	assert.Assert(t, errors.Is(err, ErrNotBuilt))
	err = m.Shell(context.Background(), fooModule(), "/bin/sh")
	assert.Assert(t, errors.Is(err, ErrNotBuilt))
	assert.Equal(t, 0, len(e.runs))
}

func TestRunEngineFailure(t *testing.T) {
	e := newFakeEngine(fooImage)
	e.runErr = &engine.StepError{Step: "running image", ExitCode: 127}
	m := newTestManager(t, &fakeProbe{kernel: testKernel}, e)

	err := m.Run(context.Background(), fooModule(), []string{"missing-binary"})
	assert.Assert(t, errors.Is(err, engine.ErrEngine))
}

func TestShell(t *testing.T) {
	e := newFakeEngine(fooImage)
	m := newTestManager(t, &fakeProbe{kernel: testKernel}, e)
	mod := fooModule()

	assert.NilError(t, m.Shell(context.Background(), mod, "/bin/sh"))
	assert.DeepEqual(t, []engine.RunOptions{{
		Image:     fooImage,
		ExtraArgs: []string{"--network=host", "-it"},
		Command:   []string{"/bin/sh"},
	}}, e.runs)
	assert.DeepEqual(t, fooModule(), mod)
}

func TestShellDefault(t *testing.T) {
	e := newFakeEngine(fooImage)
	m := newTestManager(t, &fakeProbe{kernel: testKernel}, e)

	assert.NilError(t, m.Shell(context.Background(), fooModule(), ""))
	assert.DeepEqual(t, []string{DefaultShell}, e.runs[0].Command)
}

func TestModules(t *testing.T) {
	m := newTestManager(t, &fakeProbe{kernel: testKernel}, newFakeEngine())
	names, err := m.Modules()
	assert.NilError(t, err)
	sort.Strings(names)
	assert.DeepEqual(t, []string{"bar", "foo"}, names)
}

func TestModulesUnreadable(t *testing.T) {
	l := logger.New()
	l.SetOutput(io.Discard)
	m := New(&fakeProbe{}, newFakeEngine(), modules.NewRegistry(afero.NewMemMapFs(), "/nowhere"), WithLogger(l))
	_, err := m.Modules()
	assert.ErrorContains(t, err, "error while reading data directory")
}
