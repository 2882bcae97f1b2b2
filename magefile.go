//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/magefile/mage/mg"
	"github.com/magefile/mage/sh"
)

var binaries = []struct {
	name string
	path string
}{
	{"stockcache", "./cmd/stockcache"},
	{"scheduler", "./cmd/scheduler"},
	{"api_server", "./cmd/api_server"},
}

// Default 默认任务：显示帮助信息
func Default() {
	fmt.Println("stocksync 构建系统")
	fmt.Println("==================")
	fmt.Println("可用任务:")
	fmt.Println("  mage build          - 构建所有二进制文件")
	fmt.Println("  mage test           - 运行所有测试")
	fmt.Println("  mage testShort      - 跳过计时相关的测试")
	fmt.Println("  mage testRace       - 开启竞态检测运行测试")
	fmt.Println("  mage coverage       - 生成测试覆盖率报告")
	fmt.Println("  mage lint           - 格式检查与 go vet")
	fmt.Println("  mage clean          - 清理构建产物")
	fmt.Println("  mage sync:status    - 显示快照状态")
	fmt.Println("  mage sync:gradual   - 执行一次渐进式更新（带退避）")
	fmt.Println("  mage sync:financial - 执行一次行情与估值更新")
}

// Build 构建所有二进制文件
func Build() error {
	mg.Deps(Clean)

	for _, target := range binaries {
		fmt.Printf("📦 构建 %s...\n", target.name)
		output := binaryPath(target.name)

		cmd := exec.Command("go", "build", "-o", output, target.path)
		// modernc.org/sqlite 为纯 Go 实现
		cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
		if out, err := cmd.CombinedOutput(); err != nil {
			return fmt.Errorf("构建 %s 失败: %v\n输出: %s", target.name, err, string(out))
		}

		if info, err := os.Stat(output); err == nil {
			fmt.Printf("   ✅ %s: %d MB\n", target.name, info.Size()/1024/1024)
		}
	}
	return nil
}

// Test 运行所有测试
func Test() error {
	fmt.Println("🧪 运行测试...")
	return sh.RunV("go", "test", "./pkg/...", "./cmd/...", "-timeout=5m")
}

// TestShort 跳过计时测试
func TestShort() error {
	return sh.RunV("go", "test", "-short", "./pkg/...", "./cmd/...")
}

// TestRace 开启竞态检测
func TestRace() error {
	return sh.RunV("go", "test", "-race", "./pkg/...", "./cmd/...", "-timeout=10m")
}

// Coverage 生成测试覆盖率报告
func Coverage() error {
	if err := os.MkdirAll("./reports", 0755); err != nil {
		return fmt.Errorf("创建报告目录失败: %v", err)
	}
	if err := sh.RunV("go", "test", "./pkg/...", "-coverprofile=./reports/coverage.out", "-covermode=atomic"); err != nil {
		return fmt.Errorf("生成覆盖率失败: %v", err)
	}
	if err := sh.Run("go", "tool", "cover", "-html=./reports/coverage.out", "-o", "./reports/coverage.html"); err != nil {
		return fmt.Errorf("生成HTML报告失败: %v", err)
	}
	if err := sh.RunV("go", "tool", "cover", "-func=./reports/coverage.out"); err != nil {
		return err
	}
	fmt.Println("   详细报告: file://" + absolutePath("./reports/coverage.html"))
	return nil
}

// Lint 格式检查与 go vet
func Lint() error {
	out, err := sh.Output("gofmt", "-l", ".")
	if err != nil {
		return fmt.Errorf("gofmt 检查失败: %v", err)
	}
	if out != "" {
		fmt.Printf("以下文件格式不规范:\n%s\n", out)
		return fmt.Errorf("请先运行 gofmt -w")
	}
	return sh.RunV("go", "vet", "./...")
}

// Clean 清理构建产物
func Clean() error {
	if err := os.MkdirAll("./dist", 0755); err != nil {
		return fmt.Errorf("创建 dist 目录失败: %v", err)
	}
	files, err := filepath.Glob("./dist/*")
	if err != nil {
		return err
	}
	for _, file := range files {
		if err := os.Remove(file); err != nil {
			fmt.Printf("警告: 无法删除文件 %s: %v\n", file, err)
		}
	}
	return nil
}

type Sync mg.Namespace

// Status 显示快照状态
func (Sync) Status() error {
	mg.Deps(Build)
	return sh.RunV(binaryPath("stockcache"), "-status")
}

// Gradual 执行一次渐进式更新（带退避）
func (Sync) Gradual() error {
	mg.Deps(Build)
	return sh.RunV(binaryPath("stockcache"), "-gradual-retry")
}

// Financial 执行一次行情与估值更新
func (Sync) Financial() error {
	mg.Deps(Build)
	return sh.RunV(binaryPath("stockcache"), "-financial-update")
}

func binaryPath(name string) string {
	output := filepath.Join("./dist", name)
	if runtime.GOOS == "windows" {
		output += ".exe"
	}
	return output
}

func absolutePath(relativePath string) string {
	absPath, err := filepath.Abs(relativePath)
	if err != nil {
		return relativePath
	}
	return absPath
}
