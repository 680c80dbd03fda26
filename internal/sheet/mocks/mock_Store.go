// Package mocks provides test doubles for the sheet store.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"
)

// MockStore is a mock type for the sheet.Store interface.
type MockStore struct {
	mock.Mock
}

// ReadColumn provides a mock function with given fields: ctx, col
func (_m *MockStore) ReadColumn(ctx context.Context, col int) ([]string, error) {
	ret := _m.Called(ctx, col)

	if len(ret) == 0 {
		panic("no return value specified for ReadColumn")
	}

	var r0 []string
	if rf, ok := ret.Get(0).(func(context.Context, int) []string); ok {
		r0 = rf(ctx, col)
	} else if ret.Get(0) != nil {
		r0 = ret.Get(0).([]string)
	}

	return r0, ret.Error(1)
}

// ReadCell provides a mock function with given fields: ctx, row, col
func (_m *MockStore) ReadCell(ctx context.Context, row int, col int) (string, error) {
	ret := _m.Called(ctx, row, col)

	if len(ret) == 0 {
		panic("no return value specified for ReadCell")
	}

	return ret.String(0), ret.Error(1)
}

// WriteCell provides a mock function with given fields: ctx, row, col, value
func (_m *MockStore) WriteCell(ctx context.Context, row int, col int, value string) error {
	ret := _m.Called(ctx, row, col, value)

	if len(ret) == 0 {
		panic("no return value specified for WriteCell")
	}

	return ret.Error(0)
}

// Close provides a mock function with no fields
func (_m *MockStore) Close() error {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Close")
	}

	return ret.Error(0)
}

// NewMockStore creates a new instance of MockStore. It also registers a
// testing interface on the mock and a cleanup function to assert the mocks
// expectations.
func NewMockStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStore {
	m := &MockStore{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
