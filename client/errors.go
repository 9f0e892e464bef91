/***************************************************************
 *
 * Copyright (C) 2025, Pelican Project, Morgridge Institute for Research
 *
 * Licensed under the Apache License, Version 2.0 (the "License"); you
 * may not use this file except in compliance with the License.  You may
 * obtain a copy of the License at
 *
 *    http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 *
 ***************************************************************/

package client

import (
	"fmt"
)

type (
	// ClientError is an error kind the federation client can surface to a
	// caller. Transient per-candidate failures never carry one of these;
	// only the exhaustion of all candidates or methods does.
	ClientError struct {
		kind     string
		innerErr error
	}
)

var (
	// NoAvailableSourceErr means every candidate endpoint was tried and
	// none could serve the object.
	NoAvailableSourceErr *ClientError = &ClientError{kind: "No source available for the object"}

	// BadDirectorResponseErr means the director answered but its response
	// was malformed (e.g. a listing query with no Link header).
	BadDirectorResponseErr *ClientError = &ClientError{kind: "Bad response from director"}

	// InvalidMetadataErr means federation metadata was unreachable or
	// malformed, or a path's discovery host conflicts with the federation
	// the filesystem is bound to.
	InvalidMetadataErr *ClientError = &ClientError{kind: "Invalid federation metadata"}

	// TokenNotFoundErr means a credential is required but none could be
	// discovered or generated.
	TokenNotFoundErr *ClientError = &ClientError{kind: "Credential is required but was not discovered"}

	// NotSupportedErr is returned by every mutating operation.
	NotSupportedErr *ClientError = &ClientError{kind: "Operation is not supported by the federation client"}
)

func (e *ClientError) Error() string {
	if e.innerErr != nil {
		return fmt.Sprintf("%s: %v", e.kind, e.innerErr)
	}
	return e.kind
}

func (e *ClientError) Is(target error) bool {
	if target, ok := target.(*ClientError); ok {
		return e.kind == target.kind
	}
	return false
}

func (e *ClientError) Wrap(err error) error {
	return &ClientError{
		kind:     e.kind,
		innerErr: err,
	}
}

func (e *ClientError) Unwrap() error {
	return e.innerErr
}
