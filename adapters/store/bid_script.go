package store

import "github.com/redis/go-redis/v9"

// bidGateScript 在進入資料庫交易前先用快取的現價擋掉明顯無效的出價
//  KEYS[1] - 拍賣現價鍵
//  ARGV[1] - 出價金額
//  ARGV[2] - 最低增額
//  ARGV[3] - 鍵的過期秒數
//
// 返回值:
//  1  - 出價可以進入交易
//  0  - 出價不足，直接拒絕
//  -1 - 現價快取不存在，呼叫端需從資料庫回填後重試
//
// 流程:
//  - 1. 檢查現價快取是否存在
//  - 2a. 如果不存在，返回-1
//  - 2b. 如果存在，檢查出價是否達到現價加上最低增額
//  - 3a. 如果未達到，返回0
//  - 3b. 如果達到，更新現價並刷新過期時間
//  - 4. 返回1
var bidGateScript = redis.NewScript(`
-- 檢查現價快取是否存在
local current = redis.call('GET', KEYS[1])
if not current then
    return -1
end

current = tonumber(current)
local new_bid = tonumber(ARGV[1])
local increment = tonumber(ARGV[2])

-- 出價必須達到現價加上最低增額
if new_bid < current + increment then
    return 0
end

-- 更新現價並刷新過期時間
redis.call('SET', KEYS[1], new_bid, 'EX', tonumber(ARGV[3]))

return 1
`)
