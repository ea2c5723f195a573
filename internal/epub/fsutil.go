/*
 * Copyright (c) 2025 by Alexander Drost, Oldenburg, Germany.
 * This file is licensed to you under the Apache License, Version 2.0 (the "License"); you may not use this file except in compliance with the License.  You may obtain a copy of the License at
 *   http://www.apache.org/licenses/LICENSE-2.0
 * Unless required by applicable law or agreed to in writing, software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.  See the License for the specific language governing permissions and limitations under the License.
 */

package epub

import (
	"bytes"
	"os"

	"papyrix/internal/papyrixerr"
)

func mkdirAll(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "epub: mkdir %s", dir)
	}
	return nil
}

func removeAll(dir string) error {
	if err := os.RemoveAll(dir); err != nil {
		return papyrixerr.Wrap(papyrixerr.KindIOError, err, "epub: remove %s", dir)
	}
	return nil
}

func newByteReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }
