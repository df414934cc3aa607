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

// struct ucontext {
//	uint64 uc_flags;           // 0
//	struct ucontext *uc_link;  // 8
//	stack_t uc_stack;          // 16, 24 bytes
//	sigset_t uc_sigmask;       // 40, 8 bytes
//	uint8 __unused[120];       // 48
//	struct sigcontext uc_mcontext; // 176, 16-byte aligned
// }
//
// struct sigcontext {
//	uint64 fault_address;      // 0
//	uint64 regs[31];           // 8
//	uint64 sp;                 // 256
//	uint64 pc;                 // 264
//	...
// }
const (
	supported    = true
	pcOffset     = 176 + 264
	contextWords = 128
)
