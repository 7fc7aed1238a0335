package consensus

import (
	"fmt"
	"strings"
)

const promptTemplate = `请从这张室内空气检测登记表中提取以下信息，并严格按照JSON格式返回：
{
    "phone": "联系电话",
    "date": "采样日期",
    "temperature": "采样温度值",
    "humidity": "采样湿度值",
    "check_type": "初检或复检",
    "points": {
        "点位名称1": "检测值1",
        "点位名称2": "检测值2"
    }
}

注意：
1. 联系电话是11位数字，可能是手写的，请仔细查看所有数字
2. 检测值应为小数格式，通常为0.1xx(如0.103)或0.0xx(如0.043)的格式
3. 点位名称通常是以下位置之一（基于历史学习数据）：%s
4. 日期格式为MM-DD
5. 温度和湿度只需要数值，不要单位
6. check_type是"初检"或"复检"，请查看表格左上角或表头部分的选择框
7. 只返回JSON格式数据，不要有其他说明文字
8. 辅助判断规则：根据点位值的众数判断，若大部分点位值>0.080通常是初检，若大部分点位值≤0.080通常是复检`

// BuildPrompt renders the recognition prompt, listing learned point names as
// hints. With no learning history the common room names are suggested.
func BuildPrompt(learnedPoints []string) string {
	hint := "客厅、主卧、次卧、厨房"
	if len(learnedPoints) > 0 {
		hint = strings.Join(learnedPoints, "、")
	}
	return fmt.Sprintf(promptTemplate, hint)
}
