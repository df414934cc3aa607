// Copyright 2024 The Parca Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
//

package hash

import (
	"errors"
	"strings"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
)

func TestReaderIsDeterministic(t *testing.T) {
	const maps = "7f0000000000-7f0000001000 r-xp 00000000 08:01 42 /usr/lib/libfoo.so\n"

	a, err := Reader(strings.NewReader(maps))
	require.NoError(t, err)
	b, err := Reader(iotest.OneByteReader(strings.NewReader(maps)))
	require.NoError(t, err)
	require.Equal(t, a, b)

	c, err := Reader(strings.NewReader(maps + "\n"))
	require.NoError(t, err)
	require.NotEqual(t, a, c)
}

func TestReaderError(t *testing.T) {
	boom := errors.New("boom")
	_, err := Reader(iotest.ErrReader(boom))
	require.ErrorIs(t, err, boom)
}
