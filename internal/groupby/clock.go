// Copyright (C) 2024 onfeat.
// All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.
package groupby

import "time"

func nowMillis() int64 {
	return time.Now().UnixMilli()
}
