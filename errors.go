/*
Copyright 2024 Blnk Finance Authors.

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

package payouts

import (
	"errors"
	"fmt"

	"github.com/blnkfinance/payouts/internal/apierror"
)

var (
	ErrInvalidInput             = errors.New("invalid input")
	ErrTransactionOwnerMismatch = errors.New("transactions belong to more than one user")
	ErrAlreadyPending           = errors.New("a transfer is already pending")
	ErrInvalidTransactionState  = errors.New("transaction is not in a valid state for this operation")
	ErrNoFundingSource          = errors.New("no verified default funding source")
	ErrNotCancellable           = errors.New("transaction can no longer be cancelled")
	ErrCancellationNotConfirmed = errors.New("provider did not confirm the cancellation")
	ErrForbidden                = errors.New("operation requires an admin")
)

func invalidInput(message string) error {
	return apierror.NewAPIError(apierror.ErrInvalidInput, message, ErrInvalidInput)
}

func notFound(format string, args ...interface{}) error {
	return apierror.NewAPIError(apierror.ErrNotFound, fmt.Sprintf(format, args...), nil)
}

func forbidden() error {
	return apierror.NewAPIError(apierror.ErrForbidden, ErrForbidden.Error(), nil)
}

func alreadyPending(message string) error {
	return apierror.NewAPIError(apierror.ErrConflict, message, ErrAlreadyPending)
}

func noFundingSource(message string) error {
	return apierror.NewAPIError(apierror.ErrNotAcceptable, message, ErrNoFundingSource)
}

// providerError keeps the provider error in the chain so the API can expose
// its field errors.
func providerError(message string, err error) error {
	return apierror.NewAPIError(apierror.ErrProvider, message, err)
}
