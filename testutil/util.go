/*
Copyright 2026 The Gantry Authors

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

package testutil

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

// T wraps testing.T with override and assertion helpers. Tests obtain one
// through Run.
type T struct {
	*testing.T
}

type forTester interface {
	ForTest(t *testing.T)
}

// Run runs one table-driven test case as a subtest.
func Run(t *testing.T, name string, f func(t *T)) {
	if f == nil {
		return
	}
	t.Run(name, func(tt *testing.T) {
		f(&T{T: tt})
	})
}

// Override replaces a package-level variable for the duration of the test.
// dest must be a pointer to the variable. If tmp implements
// ForTest(*testing.T) it is given the test handle first.
func (t *T) Override(dest, tmp interface{}) {
	if forTest, ok := tmp.(forTester); ok {
		forTest.ForTest(t.T)
	}

	teardown, err := override(dest, tmp)
	if err != nil {
		t.Fatalf("unable to override value: %v", err)
	}
	t.Cleanup(teardown)
}

func override(dest, tmp interface{}) (func(), error) {
	dValue := reflect.ValueOf(dest)
	if dValue.Kind() != reflect.Ptr {
		return nil, fmt.Errorf("destination is not a pointer: %v", dValue.Kind())
	}
	dElem := dValue.Elem()
	if !dElem.CanSet() {
		return nil, fmt.Errorf("destination is not settable")
	}

	saved := reflect.New(dElem.Type()).Elem()
	saved.Set(dElem)

	tValue := reflect.ValueOf(tmp)
	if tmp == nil {
		tValue = reflect.Zero(dElem.Type())
	}
	if !tValue.Type().AssignableTo(dElem.Type()) {
		return nil, fmt.Errorf("value of type %v is not assignable to %v", tValue.Type(), dElem.Type())
	}
	dElem.Set(tValue)

	return func() { dElem.Set(saved) }, nil
}

// SetEnvs sets environment variables for the duration of the test.
func (t *T) SetEnvs(envs map[string]string) {
	for key, value := range envs {
		t.Setenv(key, value)
	}
}

// Chdir changes into dir for the duration of the test.
func (t *T) Chdir(dir string) {
	pwd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getting working directory: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("changing into %q: %v", dir, err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(pwd); err != nil {
			t.Errorf("restoring working directory: %v", err)
		}
	})
}

// NewTempDir creates a temporary directory removed when the test ends.
func (t *T) NewTempDir() *TempDir {
	return NewTempDir(t.T)
}

func (t *T) CheckDeepEqual(expected, actual interface{}, opts ...cmp.Option) {
	t.Helper()
	if diff := cmp.Diff(expected, actual, opts...); diff != "" {
		t.Errorf("%T differ (-got, +want): %s", expected, diff)
	}
}

func (t *T) CheckErrorAndDeepEqual(shouldErr bool, err error, expected, actual interface{}, opts ...cmp.Option) {
	t.Helper()
	if err := checkErr(shouldErr, err); err != nil {
		t.Error(err)
		return
	}
	t.CheckDeepEqual(expected, actual, opts...)
}

func (t *T) CheckError(shouldErr bool, err error) {
	t.Helper()
	if err := checkErr(shouldErr, err); err != nil {
		t.Error(err)
	}
}

func (t *T) CheckNoError(err error) {
	t.Helper()
	if err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

// CheckErrorContains checks that an error occurred and contains message.
func (t *T) CheckErrorContains(message string, err error) {
	t.Helper()
	if err == nil {
		t.Error("expected error, but returned none")
		return
	}
	if !strings.Contains(err.Error(), message) {
		t.Errorf("expected message [%s] not found in error: %s", message, err.Error())
	}
}

// CheckContains checks that a string is contained in another.
func (t *T) CheckContains(expected, actual string) {
	t.Helper()
	if !strings.Contains(actual, expected) {
		t.Errorf("expected [%s] not found in [%s]", expected, actual)
	}
}

// CheckEmpty checks that a slice, map or string has no elements.
func (t *T) CheckEmpty(actual interface{}) {
	t.Helper()
	v := reflect.ValueOf(actual)
	switch v.Kind() {
	case reflect.Slice, reflect.Map, reflect.String, reflect.Chan:
		if v.Len() != 0 {
			t.Errorf("expected empty, but was: %+v", actual)
		}
	default:
		if !v.IsZero() {
			t.Errorf("expected empty, but was: %+v", actual)
		}
	}
}

// CheckTrue checks that the condition holds.
func (t *T) CheckTrue(condition bool) {
	t.Helper()
	if !condition {
		t.Error("expected true, but was false")
	}
}

// CheckFalse checks that the condition does not hold.
func (t *T) CheckFalse(condition bool) {
	t.Helper()
	if condition {
		t.Error("expected false, but was true")
	}
}

// RequireNoError fails the test immediately on error.
func (t *T) RequireNoError(err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func CheckErrorAndDeepEqual(t *testing.T, shouldErr bool, err error, expected, actual interface{}, opts ...cmp.Option) {
	t.Helper()
	if err := checkErr(shouldErr, err); err != nil {
		t.Error(err)
		return
	}
	CheckDeepEqual(t, expected, actual, opts...)
}

func CheckDeepEqual(t *testing.T, expected, actual interface{}, opts ...cmp.Option) {
	t.Helper()
	if diff := cmp.Diff(expected, actual, opts...); diff != "" {
		t.Errorf("%T differ (-got, +want): %s", expected, diff)
	}
}

func CheckError(t *testing.T, shouldErr bool, err error) {
	t.Helper()
	if err := checkErr(shouldErr, err); err != nil {
		t.Error(err)
	}
}

func CheckErrorContains(t *testing.T, message string, err error) {
	t.Helper()
	if err == nil {
		t.Error("expected error, but returned none")
		return
	}
	if !strings.Contains(err.Error(), message) {
		t.Errorf("expected message [%s] not found in error: %s", message, err.Error())
	}
}

func checkErr(shouldErr bool, err error) error {
	if err == nil && shouldErr {
		return fmt.Errorf("expected error, but returned none")
	}
	if err != nil && !shouldErr {
		return fmt.Errorf("unexpected error: %s", err)
	}
	return nil
}

type BadReader struct{}

func (BadReader) Read([]byte) (int, error) { return 0, fmt.Errorf("bad read") }

type BadWriter struct{}

func (BadWriter) Write([]byte) (int, error) { return 0, fmt.Errorf("bad write") }
