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

package ucontext

// struct ucontext_t {
//	uint64 uc_flags;           // 0
//	ucontext_t *uc_link;       // 8
//	stack_t uc_stack;          // 16, 24 bytes
//	mcontext_t uc_mcontext;    // 40, gregs[23]
//	...
// }
//
// REG_RIP is gregs[16].
const (
	supported    = true
	pcOffset     = 40 + 16*8
	contextWords = 128
)
