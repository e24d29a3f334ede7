package osmem

import (
	"reflect"

	"go.uber.org/mock/gomock"
)

// MockReserver is a mock of the Reserver interface, hand-maintained in the
// shape mockgen would generate (the teacher's go.mod carries go.uber.org/mock
// as an indirect dependency; this gives it a concrete home). Used by
// internal/allocator's out-of-memory tests to refuse zone growth
// deterministically without exhausting host memory.
type MockReserver struct {
	ctrl     *gomock.Controller
	recorder *MockReserverMockRecorder
}

// MockReserverMockRecorder is the mock recorder for MockReserver.
type MockReserverMockRecorder struct {
	mock *MockReserver
}

// NewMockReserver creates a new mock instance.
func NewMockReserver(ctrl *gomock.Controller) *MockReserver {
	mock := &MockReserver{ctrl: ctrl}
	mock.recorder = &MockReserverMockRecorder{mock}

	return mock
}

// EXPECT returns an object that allows the caller to indicate expected use.
func (m *MockReserver) EXPECT() *MockReserverMockRecorder {
	return m.recorder
}

// Reserve mocks base method.
func (m *MockReserver) Reserve(minBytes, alignment uintptr) (uintptr, uintptr, error) {
	m.ctrl.T.Helper()

	ret := m.ctrl.Call(m, "Reserve", minBytes, alignment)
	ret0, _ := ret[0].(uintptr)
	ret1, _ := ret[1].(uintptr)
	ret2, _ := ret[2].(error)

	return ret0, ret1, ret2
}

// Reserve indicates an expected call of Reserve.
func (mr *MockReserverMockRecorder) Reserve(minBytes, alignment interface{}) *gomock.Call {
	mr.mock.ctrl.T.Helper()

	return mr.mock.ctrl.RecordCallWithMethodType(mr.mock, "Reserve", reflect.TypeOf((*MockReserver)(nil).Reserve), minBytes, alignment)
}
