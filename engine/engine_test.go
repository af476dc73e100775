package engine_test

import (
	"errors"
	"sync"
	"testing"

	"fireside/engine"
	"fireside/engine/enginetest"
)

func TestRegistryLoad(t *testing.T) {
	reg := engine.Registry{}
	reg["fake"] = func(opts engine.Options) (engine.Model, error) {
		return enginetest.New(), nil
	}

	if _, err := reg.Load("fake", engine.Options{}); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if _, err := reg.Load("missing", engine.Options{}); err == nil {
		t.Fatal("expected error for unknown backend")
	}
}

func TestRegistryFactoryErrorWrapped(t *testing.T) {
	boom := errors.New("boom")
	reg := engine.Registry{
		"bad": func(engine.Options) (engine.Model, error) { return nil, boom },
	}
	_, err := reg.Load("bad", engine.Options{})
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapped boom", err)
	}
}

func TestDefaultRegistryHasScriptedBackend(t *testing.T) {
	if _, err := engine.DefaultRegistry.Load("scripted", engine.Options{}); err != nil {
		t.Fatalf("Load scripted: %v", err)
	}
}

func TestDefaultSamplerConfig(t *testing.T) {
	cfg := engine.DefaultSamplerConfig()
	if cfg.Temperature != 0.7 || cfg.TopK != 40 || cfg.TopP != 0.95 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.Seed != engine.SeedDefault {
		t.Errorf("seed = %d, want backend default", cfg.Seed)
	}
	if cfg.Grammar != nil {
		t.Error("default config carries a grammar")
	}
}

func TestInferenceLockSerializes(t *testing.T) {
	lock := engine.NewInferenceLock()
	counter := 0
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				lock.Lock()
				counter++
				lock.Unlock()
			}
		}()
	}
	wg.Wait()
	if counter != 16000 {
		t.Errorf("counter = %d, want 16000", counter)
	}
}

func TestFakeContextBehavior(t *testing.T) {
	model := enginetest.New()
	ctx, err := model.NewContext(4)
	if err != nil {
		t.Fatalf("NewContext: %v", err)
	}
	defer ctx.Close()

	if err := ctx.Append(enginetest.Text("abc")); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if ctx.Pos() != 3 {
		t.Errorf("pos = %d", ctx.Pos())
	}
	if err := ctx.Append(enginetest.Text("xy")); !errors.Is(err, engine.ErrContextFull) {
		t.Errorf("overflow append = %v, want ErrContextFull", err)
	}
	if ctx.Pos() != 3 {
		t.Errorf("pos changed on failed append: %d", ctx.Pos())
	}
	if err := ctx.Truncate(1); err != nil {
		t.Fatalf("Truncate: %v", err)
	}
	if ctx.Pos() != 1 {
		t.Errorf("pos after truncate = %d", ctx.Pos())
	}
}

func TestFakeTokenization(t *testing.T) {
	model := enginetest.New()
	tokens, err := model.Tokenize("héllo")
	if err != nil {
		t.Fatalf("Tokenize: %v", err)
	}
	var text []byte
	for _, tok := range tokens {
		b, err := model.TokenBytes(tok)
		if err != nil {
			t.Fatalf("TokenBytes: %v", err)
		}
		text = append(text, b...)
	}
	if string(text) != "héllo" {
		t.Errorf("round trip = %q", text)
	}
	if !model.IsEOG(enginetest.EOG) {
		t.Error("EOG not recognized")
	}
	if model.IsEOG(tokens[0]) {
		t.Error("plain token treated as EOG")
	}
}
