package remediation

import (
	"context"
	"errors"
	"sync"
)

type fakeWorker struct {
	mu    sync.Mutex
	calls []Stage

	valid      Verdict
	iac        IacVerdict
	resource   Verdict
	result     Verdict
	panicAt    Stage
	errAt      Stage
	remediated chan struct{}
}

func newPassingWorker() *fakeWorker {
	return &fakeWorker{
		valid:    Verdict{OK: true},
		resource: Verdict{OK: true},
		result:   Verdict{OK: true, Message: "done"},
	}
}

func (w *fakeWorker) record(stage Stage) error {
	w.mu.Lock()
	w.calls = append(w.calls, stage)
	w.mu.Unlock()
	if w.panicAt == stage {
		panic("worker defect")
	}
	if w.errAt == stage {
		return errors.New("unexpected failure")
	}
	return nil
}

func (w *fakeWorker) ValidateInput(ctx context.Context, req *Request) (Verdict, error) {
	if err := w.record(StageValidateInput); err != nil {
		return Verdict{}, err
	}
	return w.valid, nil
}

func (w *fakeWorker) IacCheck(ctx context.Context, session *Session, req *Request) (IacVerdict, error) {
	if err := w.record(StageIacCheck); err != nil {
		return IacVerdict{}, err
	}
	return w.iac, nil
}

func (w *fakeWorker) ResourceCheck(ctx context.Context, session *Session, req *Request) (Verdict, error) {
	if err := w.record(StageResourceCheck); err != nil {
		return Verdict{}, err
	}
	return w.resource, nil
}

func (w *fakeWorker) Remediate(ctx context.Context, session *Session, req *Request) (Verdict, error) {
	if err := w.record(StageRemediate); err != nil {
		return Verdict{}, err
	}
	if w.remediated != nil {
		<-w.remediated
	}
	return w.result, nil
}

func (w *fakeWorker) stages() []Stage {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([]Stage(nil), w.calls...)
}

type fakeElevator struct {
	mu      sync.Mutex
	assumed []string
	fail    map[string]bool
}

func (e *fakeElevator) AssumeRole(ctx context.Context, role, sessionName string) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.assumed = append(e.assumed, role)
	if e.fail[role] {
		return nil, errors.New("access denied")
	}
	return &Session{Role: role, Name: sessionName}, nil
}

func (e *fakeElevator) roles() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.assumed...)
}
