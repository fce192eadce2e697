// Copyright (c) 2025 Jeremy Hahn
// Copyright (c) 2025 Automate The Things, LLC
//
// This file is part of go-cryptoki.
//
// go-cryptoki is dual-licensed:
//
// 1. GNU Affero General Public License v3.0 (AGPL-3.0)
//    See LICENSE file or visit https://www.gnu.org/licenses/agpl-3.0.html
//
// 2. Commercial License
//    Contact licensing@automatethethings.com for commercial licensing options.

package cryptoki

import (
	"errors"
	"strconv"
	"time"

	"github.com/jeremyhahn/go-cryptoki/pkg/metrics"
	"github.com/jeremyhahn/go-cryptoki/pkg/types"
)

func slotLabel(id types.SlotID) string {
	return strconv.FormatUint(uint64(id), 10)
}

var errorTypeNames = []struct {
	kind error
	name string
}{
	{types.ErrOperationNotPermitted, "operation_not_permitted"},
	{types.ErrOperationActive, "operation_active"},
	{types.ErrOperationNotInitialized, "operation_not_initialized"},
	{types.ErrMechanismInvalid, "mechanism_invalid"},
	{types.ErrKeyHandleInvalid, "key_handle_invalid"},
	{types.ErrKeyTypeInconsistent, "key_type_inconsistent"},
	{types.ErrKeySizeInvalid, "key_size_invalid"},
	{types.ErrSignatureInvalid, "signature_invalid"},
	{types.ErrObjectHandleInvalid, "object_handle_invalid"},
	{types.ErrDeviceError, "device_error"},
}

func errorType(err error) string {
	for _, e := range errorTypeNames {
		if errors.Is(err, e.kind) {
			return e.name
		}
	}
	return "other"
}

// observe records the outcome and latency of a completed crypto operation.
func observe(op string, slot types.SlotID, start time.Time, err error) {
	label := slotLabel(slot)
	status := metrics.StatusSuccess
	if err != nil {
		status = metrics.StatusError
		metrics.RecordError(op, label, errorType(err))
	}
	metrics.RecordOperation(op, label, status, time.Since(start).Seconds())
}
