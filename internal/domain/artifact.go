package domain

import (
	"path/filepath"
	"strconv"
	"strings"
)

// AudioExt 是本地音频文件与远端地址共用的扩展名。
const AudioExt = ".mp3"

// ArtifactRelPath 返回单节音频在镜像内的相对路径：
// <reciter>/<surah>/<verse>.mp3
//
// 纯函数。文件"存在即完成"：该路径是幂等判定的唯一依据，
// 任何一方都不得用别的规则推导落盘位置。
func ArtifactRelPath(reciter string, surah, verse int) string {
	return filepath.Join(reciter, strconv.Itoa(surah), strconv.Itoa(verse)+AudioExt)
}

// VerseURL 返回单节音频的远端地址：
// <base>/<reciter>/<global>.mp3
func VerseURL(baseURL, reciter string, global int) string {
	return strings.TrimRight(baseURL, "/") + "/" + reciter + "/" + strconv.Itoa(global) + AudioExt
}
